// internal/acl/store_test.go
//
// Unit-tests for acl.store helpers using sqlmock.
//
// Run: go test ./internal/acl -v

package acl

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUserGroups(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT g.name FROM user_group_member m JOIN user_group g ON g.id = m.group_id WHERE m.user_id = ? AND g.enabled = TRUE`,
	)).
		WithArgs("u-42").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editors").AddRow("staff"))

	got, err := UserGroups(context.Background(), db, "u-42")
	if err != nil {
		t.Fatalf("UserGroups error: %v", err)
	}
	if len(got) != 2 || got[0] != "editors" || got[1] != "staff" {
		t.Fatalf("unexpected result: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
