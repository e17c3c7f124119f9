// internal/form/sqlstore.go
//
// MySQL-backed form Store.
//
// Context
//   The full record lives in the `doc` JSON column.  The handful of columns
//   the server filters or sorts on (form_id, path, method, type, and the two
//   rights levels) are duplicated as plain columns so listing and route
//   lookups never parse JSON in SQL.
//
// Notes
//   •  Update relies on the DSN flag `clientFoundRows=true`; without it an
//      unchanged row reports zero affected rows and reads as ErrNotFound.
//   •  Search only interpolates column names from searchColumns.  Values are
//      always bound parameters.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Migrations creates the form table.
var Migrations = []string{`
CREATE TABLE IF NOT EXISTS form (
    id                  BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    form_id             VARCHAR(128) NOT NULL,
    path                VARCHAR(255) NOT NULL DEFAULT '',
    method              VARCHAR(8)   NOT NULL DEFAULT '',
    type                VARCHAR(32)  NOT NULL,
    use_rights_level    INT          NOT NULL DEFAULT 0,
    editor_rights_level INT          NOT NULL DEFAULT 0,
    doc                 JSON         NOT NULL,
    UNIQUE KEY uq_form_form_id (form_id),
    KEY idx_form_type (type)
)`}

// SQLStore implements Store on a sqlx pool.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) FindByFormID(ctx context.Context, formID string) (*Form, error) {
	const q = `SELECT doc FROM form WHERE form_id = ? LIMIT 1`
	var doc []byte
	if err := s.db.GetContext(ctx, &doc, q, formID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeDoc(doc)
}

func (s *SQLStore) All(ctx context.Context) ([]Form, error) {
	var docs [][]byte
	if err := s.db.SelectContext(ctx, &docs, `SELECT doc FROM form ORDER BY form_id`); err != nil {
		return nil, err
	}
	return decodeDocs(docs)
}

func (s *SQLStore) ViewRoutes(ctx context.Context) ([]Route, error) {
	const q = `
        SELECT form_id, use_rights_level
        FROM   form
        WHERE  type = ?
        ORDER  BY form_id`
	var rows []Route
	if err := s.db.SelectContext(ctx, &rows, q, TypeView); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SQLStore) Search(ctx context.Context, q Query) (int, []Form, error) {
	q.normalise()

	where := []string{`(editor_rights_level <= ? OR JSON_CONTAINS(doc->'$.editorRightsUsers', JSON_QUOTE(?)))`}
	args := []any{q.EditorLevel, q.EditorID}

	if q.Search != "" {
		like := "%" + escapeLike(q.Search) + "%"
		ors := make([]string, 0, len(q.Fields))
		for _, f := range q.Fields {
			col := searchColumns[f]
			if q.CaseSensitive {
				ors = append(ors, "BINARY "+col+" LIKE ?")
			} else {
				ors = append(ors, "LOWER("+col+") LIKE LOWER(?)")
			}
			args = append(args, like)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM form WHERE `+cond, args...); err != nil {
		return 0, nil, err
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	page := fmt.Sprintf(`SELECT doc FROM form WHERE %s ORDER BY %s %s, form_id %s LIMIT ? OFFSET ?`,
		cond, searchColumns[q.SortBy], dir, dir)
	var docs [][]byte
	if err := s.db.SelectContext(ctx, &docs, page, append(args, q.PerPage, (q.Page-1)*q.PerPage)...); err != nil {
		return 0, nil, err
	}
	forms, err := decodeDocs(docs)
	return total, forms, err
}

func (s *SQLStore) Ensure(ctx context.Context, f *Form) (bool, error) {
	const q = `
        INSERT IGNORE INTO form
               (form_id, path, method, type, use_rights_level, editor_rights_level, doc)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	doc, err := json.Marshal(f)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, q, f.FormID, f.Path, f.Method, f.Type,
		f.UseRightsLevel, f.EditorRightsLevel, doc)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) Update(ctx context.Context, f *Form) error {
	const q = `
        UPDATE form
        SET    path = ?, method = ?, type = ?, use_rights_level = ?,
               editor_rights_level = ?, doc = ?
        WHERE  form_id = ?`
	doc, err := json.Marshal(f)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, f.Path, f.Method, f.Type,
		f.UseRightsLevel, f.EditorRightsLevel, doc, f.FormID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM form`)
	return n, err
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

func decodeDoc(doc []byte) (*Form, error) {
	var f Form
	if err := json.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("form: decode doc: %w", err)
	}
	return &f, nil
}

func decodeDocs(docs [][]byte) ([]Form, error) {
	out := make([]Form, 0, len(docs))
	for _, d := range docs {
		f, err := decodeDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
