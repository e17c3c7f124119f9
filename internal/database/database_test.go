package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestEnsureDSNFlags(t *testing.T) {
	got, err := EnsureDSNFlags("u:p@tcp(127.0.0.1:3306)/beacon")
	if err != nil {
		t.Fatalf("EnsureDSNFlags: %v", err)
	}
	for _, want := range []string{"parseTime=true", "clientFoundRows=true"} {
		if !strings.Contains(got, want) {
			t.Errorf("%s missing in %s", want, got)
		}
	}
	if _, err := EnsureDSNFlags("not a dsn"); err == nil {
		t.Fatal("bad dsn must fail")
	}
}

func TestMigrate(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, "mysql")

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS a (id INT)",
		"CREATE TABLE IF NOT EXISTS b (id INT)",
	}
	mock.ExpectExec(regexp.QuoteMeta(stmts[0])).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(stmts[1])).WillReturnError(errors.New("boom"))

	err = Migrate(context.Background(), db, stmts...)
	if err == nil || !strings.Contains(err.Error(), "migration 1") {
		t.Fatalf("want migration 1 error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
