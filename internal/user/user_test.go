// internal/user/user_test.go
//
// Unit-tests for account helpers and the stores.
//
// Run: go test ./internal/user -v

package user

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

func TestContactEmail(t *testing.T) {
	u := &User{Email: "new@user.fi", Security: Security{VerifyEmail: VerifyEmail{OldEmail: "old@user.fi"}}}
	if got := u.ContactEmail(); got != "old@user.fi" {
		t.Fatalf("unverified change should mail the old address, got %q", got)
	}
	u.Security.VerifyEmail.Verified = true
	if got := u.ContactEmail(); got != "new@user.fi" {
		t.Fatalf("verified address expected, got %q", got)
	}
}

func TestPublic_HidesSecrets(t *testing.T) {
	u := &User{ID: "u-1", Username: "member", PasswordHash: "$2a$10$x",
		Security: Security{LoginAttempts: 2, VerifyEmail: VerifyEmail{Verified: true}}}
	doc := u.Public()
	if _, ok := doc["security"]; ok {
		t.Fatalf("security leaked")
	}
	if _, ok := doc["passwordHash"]; ok {
		t.Fatalf("password hash leaked")
	}
	if doc["verified"] != true || doc["username"] != "member" {
		t.Fatalf("unexpected doc: %v", doc)
	}
}

func TestEmailTaken(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	_ = m.Create(ctx, &User{ID: "u-1", Username: "first", Email: "first@user.fi"})
	_ = m.Create(ctx, &User{ID: "u-2", Username: "second", Email: "changed@user.fi",
		Security: Security{VerifyEmail: VerifyEmail{OldEmail: "second@user.fi"}}})

	cases := []struct {
		email, self string
		want        bool
	}{
		{"first@user.fi", "u-1", false},
		{" first@user.fi ", "u-2", true},
		{"second@user.fi", "u-1", true},
		{"second@user.fi", "u-2", false},
		{"free@user.fi", "", false},
	}
	for _, tc := range cases {
		got, err := EmailTaken(ctx, m, tc.email, tc.self)
		if err != nil || got != tc.want {
			t.Errorf("EmailTaken(%q, %q) = %v, %v", tc.email, tc.self, got, err)
		}
	}
}

func TestAppendLoginLog(t *testing.T) {
	var logs []LoginEntry
	for i := 0; i < 5; i++ {
		logs = AppendLoginLog(logs, LoginEntry{IP: string(rune('a' + i))}, 3)
	}
	if len(logs) != 3 || logs[0].IP != "c" || logs[2].IP != "e" {
		t.Fatalf("unexpected logs: %#v", logs)
	}
}

func TestMemStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	u := &User{ID: "u-1", Username: "member", PasswordHash: "hash",
		Security: Security{NewPassLink: &NewPassLink{Token: "tok", Expires: exp}}}
	if err := m.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create(ctx, &User{ID: "u-2", Username: "member"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate username: %v", err)
	}
	got, err := m.FindByNewPassToken(ctx, "tok")
	if err != nil || got.PasswordHash != "hash" || !got.Security.NewPassLink.Expires.Equal(exp) {
		t.Fatalf("FindByNewPassToken: %#v %v", got, err)
	}
	if _, err := m.FindByNewPassToken(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty token must not match")
	}
	if err := m.Delete(ctx, "u-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Update(ctx, u); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update after delete: %v", err)
	}
}

func TestSQLStore_FindAndCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewSQLStore(sqlx.NewDb(db, "sqlmock"))
	ctx := context.Background()

	cols := []string{"id", "username", "email", "name", "user_level", "password_hash", "exposure", "security", "created", "edited"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + userCols + ` FROM users WHERE username = ? LIMIT 1`)).
		WithArgs("member").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u-1", "member", "m@user.fi", "", 2, "hash",
			[]byte(`{"email":1}`), []byte(`{"loginAttempts":1,"verifyEmail":{"verified":true}}`),
			[]byte(`{"date":"2025-01-01T00:00:00Z"}`), []byte(`[]`)))
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	u, err := s.FindByUsername(ctx, "member")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if u.Exposure["email"] != 1 || u.Security.LoginAttempts != 1 || !u.Verified() {
		t.Fatalf("JSON columns not decoded: %#v", u)
	}
	if err := s.Create(ctx, &User{ID: "u-3", Username: "member"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
