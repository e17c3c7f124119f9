// internal/message/template.go
//
// Email templates and their stores.
//
// Context
//   Outbound mail is written by operators, not code.  Each template has an
//   EmailID the handlers refer to (`new-user-email`, `verify-account-email`,
//   …), a sender display name, and a subject and body with `$[var]`
//   placeholders.  Bodies are markdown.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/beacon/internal/history"
)

// ErrNotFound is returned when no template has the requested id.
var ErrNotFound = errors.New("email template not found")

// Template is one stored email.
type Template struct {
	ID           int64           `db:"id"            json:"id"             yaml:"-"`
	EmailID      string          `db:"email_id"      json:"emailId"        yaml:"emailId"`
	FromName     string          `db:"from_name"     json:"fromName"       yaml:"fromName"`
	DefaultEmail Body            `db:"default_email" json:"defaultEmail"   yaml:"defaultEmail"`
	Created      history.Created `db:"created"       json:"created"        yaml:"-"`
	Edited       history.Log     `db:"edited"        json:"edited"         yaml:"-"`
}

// Body is a subject and markdown text pair.
type Body struct {
	Subject string `json:"subject" yaml:"subject"`
	Text    string `json:"text"    yaml:"text"`
}

func (b Body) Value() (driver.Value, error) { return json.Marshal(b) }

func (b *Body) Scan(src any) error { return history.ScanJSON(src, b) }

// Store persists templates.
type Store interface {
	FindByEmailID(ctx context.Context, emailID string) (*Template, error)
	// Ensure inserts t unless a template with the same EmailID exists.
	Ensure(ctx context.Context, t *Template) (bool, error)
	Count(ctx context.Context) (int, error)
}

/*──────────────────────────── sql ──────────────────────────────────────────*/

// Migrations creates the email table.
var Migrations = []string{`
CREATE TABLE IF NOT EXISTS email (
    id            BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
    email_id      VARCHAR(128) NOT NULL,
    from_name     VARCHAR(255) NOT NULL DEFAULT '',
    default_email JSON         NOT NULL,
    created       JSON         NOT NULL,
    edited        JSON         NOT NULL,
    UNIQUE KEY uq_email_email_id (email_id)
)`}

const templateCols = `id, email_id, from_name, default_email, created, edited`

// SQLStore implements Store on a sqlx pool.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) FindByEmailID(ctx context.Context, emailID string) (*Template, error) {
	var t Template
	err := s.db.GetContext(ctx, &t, `SELECT `+templateCols+` FROM email WHERE email_id = ? LIMIT 1`, emailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLStore) Ensure(ctx context.Context, t *Template) (bool, error) {
	const q = `
        INSERT IGNORE INTO email (email_id, from_name, default_email, created, edited)
        VALUES (:email_id, :from_name, :default_email, :created, :edited)`
	res, err := s.db.NamedExecContext(ctx, q, t)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM email`)
	return n, err
}

/*──────────────────────────── memory ───────────────────────────────────────*/

// MemStore keeps templates in process memory.
type MemStore struct {
	mu sync.RWMutex
	m  map[string]Template
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore { return &MemStore{m: make(map[string]Template)} }

func (m *MemStore) FindByEmailID(_ context.Context, emailID string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.m[emailID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemStore) Ensure(_ context.Context, t *Template) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.m[t.EmailID]; ok {
		return false, nil
	}
	cp := *t
	cp.ID = int64(len(m.m) + 1)
	m.m[t.EmailID] = cp
	return true, nil
}

func (m *MemStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m), nil
}

// Delete removes a template.  Tests use it to check re-seeding.
func (m *MemStore) Delete(emailID string) {
	m.mu.Lock()
	delete(m.m, emailID)
	m.mu.Unlock()
}

// IDs lists the stored email ids in order.
func (m *MemStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.m))
	for id := range m.m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
