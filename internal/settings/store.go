package settings

import "context"

// Store persists admin and user settings.
type Store interface {
	AdminSettings(ctx context.Context) ([]AdminSetting, error)
	AdminSetting(ctx context.Context, settingID string) (*AdminSetting, error)
	// EnsureAdmin inserts s unless its SettingID exists and reports whether
	// it inserted.
	EnsureAdmin(ctx context.Context, s *AdminSetting) (bool, error)
	UpdateAdmin(ctx context.Context, s *AdminSetting) error
	CountAdmin(ctx context.Context) (int, error)

	UserSettings(ctx context.Context, userID string) ([]UserSetting, error)
	UserSetting(ctx context.Context, userID, settingID string) (*UserSetting, error)
	UserSettingByRow(ctx context.Context, rowID int64) (*UserSetting, error)
	CreateUserSetting(ctx context.Context, s *UserSetting) error
	UpdateUserSetting(ctx context.Context, s *UserSetting) error
	DeleteUserSettings(ctx context.Context, userID string) error
}
