// internal/form/sqlstore_test.go
//
// Unit-tests for SQLStore using sqlmock.
//
// Run: go test ./internal/form -v

package form

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSQLStore_FindByFormID(t *testing.T) {
	s, mock := newMockStore(t)
	doc := `{"formId":"read-profile","type":"readapi","useRightsLevel":1,"editorRightsLevel":8,"created":{"by":"","date":"0001-01-01T00:00:00Z"}}`

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM form WHERE form_id = ? LIMIT 1`)).
		WithArgs("read-profile").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(doc)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM form WHERE form_id = ? LIMIT 1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	f, err := s.FindByFormID(context.Background(), "read-profile")
	if err != nil {
		t.Fatalf("FindByFormID: %v", err)
	}
	if f.UseRightsLevel != 1 || f.Type != TypeReadAPI {
		t.Fatalf("unexpected form: %#v", f)
	}
	if _, err := s.FindByFormID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQLStore_ViewRoutes(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT form_id, use_rights_level\s+FROM\s+form\s+WHERE\s+type = \?`).
		WithArgs(TypeView).
		WillReturnRows(sqlmock.NewRows([]string{"form_id", "use_rights_level"}).
			AddRow("route-landing", 2).AddRow("route-login", 0))

	got, err := s.ViewRoutes(context.Background())
	if err != nil {
		t.Fatalf("ViewRoutes: %v", err)
	}
	if len(got) != 2 || got[0].FormID != "route-landing" || got[0].UseRightsLevel != 2 {
		t.Fatalf("unexpected routes: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQLStore_Ensure(t *testing.T) {
	s, mock := newMockStore(t)
	f := &Form{FormID: "read-users", Type: TypeReadAPI, UseRightsLevel: 8, EditorRightsLevel: 9}

	mock.ExpectExec(`INSERT IGNORE INTO form`).
		WithArgs("read-users", "", "", TypeReadAPI, 8, 9, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT IGNORE INTO form`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := s.Ensure(context.Background(), f)
	if err != nil || !created {
		t.Fatalf("first Ensure: %v %v", created, err)
	}
	created, err = s.Ensure(context.Background(), f)
	if err != nil || created {
		t.Fatalf("second Ensure should be a no-op: %v %v", created, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQLStore_UpdateMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE form`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Update(context.Background(), &Form{FormID: "gone"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSQLStore_Search(t *testing.T) {
	s, mock := newMockStore(t)
	doc := []byte(`{"formId":"route-login","path":"/login","type":"view","useRightsLevel":0,"editorRightsLevel":8}`)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM form WHERE (editor_rights_level <= ? OR JSON_CONTAINS(doc->'$.editorRightsUsers', JSON_QUOTE(?))) AND (LOWER(form_id) LIKE LOWER(?) OR LOWER(path) LIKE LOWER(?))`)).
		WithArgs(8, "u-1", `%log\_in%`, `%log\_in%`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(31))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY path DESC, form_id DESC LIMIT ? OFFSET ?`)).
		WithArgs(8, "u-1", `%log\_in%`, `%log\_in%`, 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))

	total, forms, err := s.Search(context.Background(), Query{
		EditorLevel: 8, EditorID: "u-1", Search: "log_in",
		Fields: []string{"formId", "path", "doc; DROP TABLE form"},
		SortBy: "path", Desc: true, Page: 3, PerPage: 10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 31 || len(forms) != 1 || forms[0].Path != "/login" {
		t.Fatalf("unexpected result: %d %#v", total, forms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
