package settings

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

func TestSQLStore_AdminSetting(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "setting_id", "value", "default_value", "type", "password", "setting_read_right", "created", "edited"}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + adminCols + ` FROM admin_setting WHERE setting_id = ? LIMIT 1`)).
		WithArgs(MaxLoginAttempts).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(3, MaxLoginAttempts, "5", "5", TypeInteger, false, 0, []byte(`{"date":"2025-01-01T00:00:00Z"}`), []byte(`[]`)))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM admin_setting WHERE setting_id = ?`)).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	a, err := s.AdminSetting(context.Background(), MaxLoginAttempts)
	if err != nil {
		t.Fatalf("AdminSetting: %v", err)
	}
	if a.ID != 3 || a.Parsed() != 5 || a.Created.Date.Year() != 2025 {
		t.Fatalf("unexpected row: %#v", a)
	}
	if _, err := s.AdminSetting(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQLStore_UserSettings(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "setting_id", "user_id", "value", "default_value", "type", "enabled_id"}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + userCols + ` FROM user_setting WHERE user_id = ? ORDER BY id`)).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(10, "ui-theme", "u-1", "dark", "dark", TypeString, "").
			AddRow(11, EnableUserTwoFactor, "u-1", "false", "false", TypeBoolean, UseTwoFactorAuth))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE user_setting SET value = ? WHERE id = ?`)).
		WithArgs("light", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_setting WHERE user_id = ?`)).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	ctx := context.Background()
	rows, err := s.UserSettings(ctx, "u-1")
	if err != nil || len(rows) != 2 || rows[1].EnabledID != UseTwoFactorAuth {
		t.Fatalf("UserSettings: %#v %v", rows, err)
	}
	rows[0].Value = "light"
	if err := s.UpdateUserSetting(ctx, &rows[0]); err != nil {
		t.Fatalf("UpdateUserSetting: %v", err)
	}
	if err := s.DeleteUserSettings(ctx, "u-1"); err != nil {
		t.Fatalf("DeleteUserSettings: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQLStore_CreateUserSetting(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO user_setting`).
		WithArgs("ui-theme", "u-1", "dark", "dark", TypeString, "").
		WillReturnResult(sqlmock.NewResult(42, 1))

	u := &UserSetting{SettingID: "ui-theme", UserID: "u-1", Value: "dark", DefaultValue: "dark", Type: TypeString}
	if err := s.CreateUserSetting(context.Background(), u); err != nil {
		t.Fatalf("CreateUserSetting: %v", err)
	}
	if u.ID != 42 {
		t.Fatalf("ID = %d", u.ID)
	}
}
