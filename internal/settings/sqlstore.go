// internal/settings/sqlstore.go
//
// MySQL-backed settings Store.
//
// Notes
//   •  Column lists match the `db` tags on AdminSetting and UserSetting;
//      update both together.
//   •  Update statements rely on `clientFoundRows=true` in the DSN so an
//      unchanged row still counts as found.
//
//------------------------------------------------------------------------------

package settings

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Migrations creates the settings tables.
var Migrations = []string{`
CREATE TABLE IF NOT EXISTS admin_setting (
    id                 BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    setting_id         VARCHAR(128) NOT NULL,
    value              TEXT         NOT NULL,
    default_value      TEXT         NOT NULL,
    type               VARCHAR(16)  NOT NULL DEFAULT 'string',
    password           BOOLEAN      NOT NULL DEFAULT FALSE,
    setting_read_right INT          NOT NULL DEFAULT 0,
    created            JSON         NOT NULL,
    edited             JSON         NOT NULL,
    UNIQUE KEY uq_admin_setting_id (setting_id)
)`, `
CREATE TABLE IF NOT EXISTS user_setting (
    id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    setting_id    VARCHAR(128) NOT NULL,
    user_id       VARCHAR(64)  NOT NULL,
    value         TEXT         NOT NULL,
    default_value TEXT         NOT NULL,
    type          VARCHAR(16)  NOT NULL DEFAULT 'string',
    enabled_id    VARCHAR(128) NOT NULL DEFAULT '',
    UNIQUE KEY uq_user_setting (user_id, setting_id)
)`}

const (
	adminCols = `id, setting_id, value, default_value, type, password, setting_read_right, created, edited`
	userCols  = `id, setting_id, user_id, value, default_value, type, enabled_id`
)

// SQLStore implements Store on a sqlx pool.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) AdminSettings(ctx context.Context) ([]AdminSetting, error) {
	var rows []AdminSetting
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+adminCols+` FROM admin_setting ORDER BY id`); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SQLStore) AdminSetting(ctx context.Context, settingID string) (*AdminSetting, error) {
	var row AdminSetting
	err := s.db.GetContext(ctx, &row, `SELECT `+adminCols+` FROM admin_setting WHERE setting_id = ? LIMIT 1`, settingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *SQLStore) EnsureAdmin(ctx context.Context, a *AdminSetting) (bool, error) {
	const q = `
        INSERT IGNORE INTO admin_setting
               (setting_id, value, default_value, type, password, setting_read_right, created, edited)
        VALUES (:setting_id, :value, :default_value, :type, :password, :setting_read_right, :created, :edited)`
	res, err := s.db.NamedExecContext(ctx, q, a)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) UpdateAdmin(ctx context.Context, a *AdminSetting) error {
	const q = `
        UPDATE admin_setting
        SET    value = :value, edited = :edited
        WHERE  setting_id = :setting_id`
	res, err := s.db.NamedExecContext(ctx, q, a)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) CountAdmin(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM admin_setting`)
	return n, err
}

func (s *SQLStore) UserSettings(ctx context.Context, userID string) ([]UserSetting, error) {
	var rows []UserSetting
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userCols+` FROM user_setting WHERE user_id = ? ORDER BY id`, userID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SQLStore) UserSetting(ctx context.Context, userID, settingID string) (*UserSetting, error) {
	var row UserSetting
	err := s.db.GetContext(ctx, &row,
		`SELECT `+userCols+` FROM user_setting WHERE user_id = ? AND setting_id = ? LIMIT 1`, userID, settingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *SQLStore) UserSettingByRow(ctx context.Context, rowID int64) (*UserSetting, error) {
	var row UserSetting
	err := s.db.GetContext(ctx, &row, `SELECT `+userCols+` FROM user_setting WHERE id = ? LIMIT 1`, rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateUserSetting inserts u, ignoring a concurrent duplicate, and sets u.ID.
func (s *SQLStore) CreateUserSetting(ctx context.Context, u *UserSetting) error {
	const q = `
        INSERT INTO user_setting (setting_id, user_id, value, default_value, type, enabled_id)
        VALUES (:setting_id, :user_id, :value, :default_value, :type, :enabled_id)
        ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)`
	res, err := s.db.NamedExecContext(ctx, q, u)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		u.ID = id
	}
	return err
}

func (s *SQLStore) UpdateUserSetting(ctx context.Context, u *UserSetting) error {
	res, err := s.db.ExecContext(ctx, `UPDATE user_setting SET value = ? WHERE id = ?`, u.Value, u.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) DeleteUserSettings(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_setting WHERE user_id = ?`, userID)
	return err
}

func mustAffect(res sql.Result) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
