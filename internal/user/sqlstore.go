// internal/user/sqlstore.go
//
// MySQL-backed user Store.
//
// Context
//   The account lives in one row of `users`.  Nested blocks (exposure,
//   security, created, edited) are JSON columns.  Three lookups need values
//   from inside Security, so those are copied into plain indexed columns on
//   every write: old_email, new_pass_token, and verify_token.
//
//------------------------------------------------------------------------------

package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Migrations creates the users table.
var Migrations = []string{`
CREATE TABLE IF NOT EXISTS users (
    id             VARCHAR(36)  NOT NULL PRIMARY KEY,
    username       VARCHAR(64)  NOT NULL,
    email          VARCHAR(255) NOT NULL DEFAULT '',
    name           VARCHAR(255) NOT NULL DEFAULT '',
    user_level     INT          NOT NULL DEFAULT 1,
    password_hash  VARCHAR(255) NOT NULL,
    exposure       JSON         NOT NULL,
    security       JSON         NOT NULL,
    created        JSON         NOT NULL,
    edited         JSON         NOT NULL,
    old_email      VARCHAR(255) NOT NULL DEFAULT '',
    new_pass_token VARCHAR(128) NOT NULL DEFAULT '',
    verify_token   VARCHAR(128) NOT NULL DEFAULT '',
    UNIQUE KEY uq_users_username (username),
    KEY idx_users_email (email),
    KEY idx_users_old_email (old_email),
    KEY idx_users_new_pass_token (new_pass_token),
    KEY idx_users_verify_token (verify_token)
)`}

const userCols = `id, username, email, name, user_level, password_hash, exposure, security, created, edited`

// errDupEntry is the MySQL error number for a unique key violation.
const errDupEntry = 1062

// SQLStore implements Store on a sqlx pool.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) findOne(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT `+userCols+` FROM users WHERE `+where+` LIMIT 1`, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, `id = ?`, id)
}

func (s *SQLStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, `username = ?`, username)
}

func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, `email = ?`, email)
}

func (s *SQLStore) FindByOldEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `old_email = ?`, email)
}

func (s *SQLStore) FindByNewPassToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `new_pass_token = ?`, token)
}

func (s *SQLStore) FindByVerifyToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `verify_token = ?`, token)
}

func (s *SQLStore) ListBelowLevel(ctx context.Context, level int) ([]User, error) {
	var rows []User
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+userCols+` FROM users WHERE user_level < ? ORDER BY username`, level); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

func (s *SQLStore) Create(ctx context.Context, u *User) error {
	const q = `
        INSERT INTO users
               (id, username, email, name, user_level, password_hash, exposure, security,
                created, edited, old_email, new_pass_token, verify_token)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	oldEmail, passTok, verifyTok := lookupKeys(u)
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Username, u.Email, u.Name, u.UserLevel, u.PasswordHash,
		u.Exposure, u.Security, u.Created, u.Edited, oldEmail, passTok, verifyTok)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDupEntry {
		return ErrDuplicate
	}
	return err
}

func (s *SQLStore) Update(ctx context.Context, u *User) error {
	const q = `
        UPDATE users
        SET    username = ?, email = ?, name = ?, user_level = ?, password_hash = ?,
               exposure = ?, security = ?, edited = ?, old_email = ?, new_pass_token = ?,
               verify_token = ?
        WHERE  id = ?`
	oldEmail, passTok, verifyTok := lookupKeys(u)
	res, err := s.db.ExecContext(ctx, q, u.Username, u.Email, u.Name, u.UserLevel, u.PasswordHash,
		u.Exposure, u.Security, u.Edited, oldEmail, passTok, verifyTok, u.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// lookupKeys extracts the denormalised lookup columns from u.Security.
func lookupKeys(u *User) (oldEmail, newPassToken, verifyToken string) {
	if u.Security.NewPassLink != nil {
		newPassToken = u.Security.NewPassLink.Token
	}
	return u.Security.VerifyEmail.OldEmail, newPassToken, u.Security.VerifyEmail.Token
}
