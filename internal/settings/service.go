// internal/settings/service.go
//
// Beacon – settings service with explicit cache invalidation.
//
// Context
//   Nearly every request asks for settings: the form gate needs toggles for
//   the access checker, and handlers read limits such as max-login-attempts.
//   The service keeps two caches:
//
//     •  one admin snapshot, shared by all sessions, swapped atomically, and
//     •  a bounded LRU of per-user snapshots keyed by user id.
//
//   A caller either accepts the cached view (reload=false) or forces a fresh
//   read (reload=true).  Concurrent reloads of the same key collapse into one
//   store round-trip through singleflight.  Between a write and the next
//   reload, readers may see the previous values; writers that need their
//   change visible call Reload or InvalidateUser.
//
// Workflow
//   Settings(ctx, s, reload)
//     1.  Admin snapshot (loaded on first use or when reload is set).
//     2.  Admin values readable at the session level are copied.
//     3.  For a logged-in session, user values are merged on top.  Fields of
//         the user-settings form that have no row yet are created from their
//         defaults (GetOrDefault).
//
//------------------------------------------------------------------------------

package settings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/beacon/internal/acl"
	"github.com/yanizio/beacon/internal/cache"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/metrics"
	"github.com/yanizio/beacon/internal/session"
)

type adminSnapshot struct {
	values    Values
	readRight map[string]int
}

// Service resolves settings for sessions.
type Service struct {
	store Store
	forms form.Store

	admin atomic.Pointer[adminSnapshot]
	users *cache.LRU[string, Values]
	group singleflight.Group
}

// NewService wires the service.  userEntries bounds the per-user cache; zero
// picks a default.
func NewService(store Store, forms form.Store, userEntries int) *Service {
	if store == nil || forms == nil {
		panic("settings.NewService: nil dependency")
	}
	if userEntries <= 0 {
		userEntries = 1024
	}
	return &Service{store: store, forms: forms, users: cache.New[string, Values](userEntries)}
}

/*──────────────────────────── invalidation ─────────────────────────────────*/

// Reload re-reads the admin settings and drops every cached user snapshot.
func (s *Service) Reload(ctx context.Context) error {
	_, err, _ := s.group.Do("admin", func() (any, error) {
		rows, err := s.store.AdminSettings(ctx)
		if err != nil {
			metrics.SettingsReloadErrorsTotal.Inc()
			return nil, fmt.Errorf("settings: load admin: %w", err)
		}
		snap := &adminSnapshot{values: make(Values, len(rows)), readRight: make(map[string]int, len(rows))}
		for i := range rows {
			snap.values[rows[i].SettingID] = rows[i].Parsed()
			snap.readRight[rows[i].SettingID] = rows[i].SettingReadRight
		}
		s.admin.Store(snap)
		metrics.SettingsReloadTotal.Inc()
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.users.Purge()
	metrics.UserSettingsCached.Set(0)
	return nil
}

// InvalidateUser drops the cached snapshot for userID.
func (s *Service) InvalidateUser(userID string) {
	s.users.Remove(userID)
	metrics.UserSettingsCached.Set(float64(s.users.Len()))
}

/*──────────────────────────── reads ────────────────────────────────────────*/

// Settings returns the merged view for sess.  The result is a copy.
func (s *Service) Settings(ctx context.Context, sess *session.Session, reload bool) (Values, error) {
	snap, err := s.adminSnapshot(ctx, reload)
	if err != nil {
		return nil, err
	}
	level := sess.Level()
	out := make(Values, len(snap.values))
	for id, v := range snap.values {
		if level >= snap.readRight[id] {
			out[id] = v
		}
	}
	if !sess.IsLoggedIn() {
		return out, nil
	}

	uv, err := s.userValues(ctx, sess.UserID, reload)
	if err != nil {
		return nil, err
	}
	for id, v := range uv {
		out[id] = v
	}
	return out, nil
}

// Toggles is Settings without reload, typed for the access checker.
func (s *Service) Toggles(ctx context.Context, sess *session.Session) (acl.Toggles, error) {
	return s.Settings(ctx, sess, false)
}

// Admin returns one admin value from the cached snapshot, or nil.
func (s *Service) Admin(ctx context.Context, id string) (any, error) {
	snap, err := s.adminSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return snap.values[id], nil
}

// AdminValues returns the cached admin snapshot without read-right filtering.
// Server-side code uses it for limits that never leave the process.
func (s *Service) AdminValues(ctx context.Context) (Values, error) {
	snap, err := s.adminSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return snap.values.clone(), nil
}

// Setting reads one value.  With reload the row is read from the store and
// the cache refreshed.  A user setting with no row falls back to its default.
func (s *Service) Setting(ctx context.Context, sess *session.Session, id string, admin, reload bool) (any, error) {
	if reload {
		if admin {
			if err := s.Reload(ctx); err != nil {
				return nil, err
			}
		} else if sess.IsLoggedIn() {
			s.InvalidateUser(sess.UserID)
		}
	}
	all, err := s.Settings(ctx, sess, false)
	if err != nil {
		return nil, err
	}
	if v, ok := all[id]; ok {
		return v, nil
	}
	if admin || !sess.IsLoggedIn() {
		return nil, nil
	}
	return s.GetOrDefault(ctx, sess.UserID, id)
}

// GetOrDefault returns the stored user value for id, creating the row from
// the user-settings form default when it is missing.  Ids unknown to the form
// yield nil.
func (s *Service) GetOrDefault(ctx context.Context, userID, id string) (any, error) {
	row, err := s.store.UserSetting(ctx, userID, id)
	if err == nil {
		return row.Parsed(), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	f, err := s.forms.FindByFormID(ctx, UserSettingsFormID)
	if err != nil {
		return nil, fmt.Errorf("settings: user settings form: %w", err)
	}
	fd := f.Schema.FieldByID(id)
	if fd == nil {
		return nil, nil
	}
	return s.createDefault(ctx, userID, fd)
}

func (s *Service) createDefault(ctx context.Context, userID string, fd *form.Field) (any, error) {
	row := &UserSetting{
		SettingID:    fd.ID,
		UserID:       userID,
		Value:        form.Stringify(fd.DefaultValue),
		DefaultValue: form.Stringify(fd.DefaultValue),
		Type:         fd.SettingType,
		EnabledID:    fd.EnabledID,
	}
	if err := s.store.CreateUserSetting(ctx, row); err != nil {
		return nil, fmt.Errorf("settings: create default %s: %w", fd.ID, err)
	}
	zap.S().Debugw("user setting created from default", "user", userID, "setting", fd.ID)
	return row.Parsed(), nil
}

func (s *Service) adminSnapshot(ctx context.Context, reload bool) (*adminSnapshot, error) {
	if snap := s.admin.Load(); snap != nil && !reload {
		return snap, nil
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s.admin.Load(), nil
}

func (s *Service) userValues(ctx context.Context, userID string, reload bool) (Values, error) {
	if !reload {
		if v, ok := s.users.Get(userID); ok {
			return v, nil
		}
	}
	v, err, _ := s.group.Do("user:"+userID, func() (any, error) {
		return s.loadUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	vals := v.(Values)
	s.users.Add(userID, vals)
	metrics.UserSettingsCached.Set(float64(s.users.Len()))
	return vals, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (Values, error) {
	f, err := s.forms.FindByFormID(ctx, UserSettingsFormID)
	if errors.Is(err, form.ErrNotFound) {
		return Values{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: user settings form: %w", err)
	}
	rows, err := s.store.UserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("settings: load user %s: %w", userID, err)
	}
	byID := make(map[string]*UserSetting, len(rows))
	for i := range rows {
		byID[rows[i].SettingID] = &rows[i]
	}

	out := make(Values)
	var ferr error
	f.EachField(false, func(fd *form.Field) {
		if ferr != nil {
			return
		}
		if row, ok := byID[fd.ID]; ok {
			out[fd.ID] = row.Parsed()
			return
		}
		out[fd.ID], ferr = s.createDefault(ctx, userID, fd)
	})
	if ferr != nil {
		return nil, ferr
	}
	return out, nil
}

/*──────────────────────────── public view ──────────────────────────────────*/

// PublicSettings returns the client-safe subset of settings under client
// key names, plus `_routeAccess` (view form id → may open).
func (s *Service) PublicSettings(ctx context.Context, sess *session.Session, reload bool) (map[string]any, error) {
	all, err := s.Settings(ctx, sess, reload)
	if err != nil {
		return nil, err
	}

	canCreate := any(all[PublicUserRegistration])
	if sess.IsLoggedIn() {
		canCreate = all.Int(UserLevelToRegister) <= sess.UserLevel
	}
	useVerification := any(false)
	if form.Truthy(all[EmailSending]) {
		useVerification = all[UseEmailVerification]
	}

	out := map[string]any{
		"canCreateUser":        canCreate,
		"tableSorting":         all[TableSorting],
		"canSetExposure":       all[UsersCanSetExposure],
		"forgotPass":           all[ForgotPasswordFeature],
		"useEmailVerification": useVerification,
	}

	routes, err := s.forms.ViewRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: view routes: %w", err)
	}
	access := make(map[string]bool, len(routes))
	for _, r := range routes {
		access[r.FormID] = sess.Level() >= r.UseRightsLevel
	}
	out["_routeAccess"] = access
	return out, nil
}

/*──────────────────────────── enable rules ─────────────────────────────────*/

// EnabledUserSettings returns the admin values that can switch user settings
// off, keyed by admin setting id.
func (s *Service) EnabledUserSettings(ctx context.Context, sess *session.Session) (map[string]any, error) {
	v, err := s.Setting(ctx, sess, UseTwoFactorAuth, true, true)
	if err != nil {
		return nil, err
	}
	return map[string]any{UseTwoFactorAuth: v}, nil
}

// FilterUserSettings drops rows whose controlling admin setting disables them.
func (s *Service) FilterUserSettings(ctx context.Context, rows []UserSetting, enabled map[string]any) ([]UserSetting, error) {
	out := make([]UserSetting, 0, len(rows))
	for _, r := range rows {
		if r.EnabledID == "" {
			out = append(out, r)
			continue
		}
		ok, err := s.AdminSettingEnabled(ctx, enabled[r.EnabledID], r.SettingID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// AdminSettingEnabled reports whether the user setting settingID is
// available given the value of its controlling admin setting.  The per-user
// 2FA toggle is unavailable when the admin mode is disabled or
// enabled_always, or when email sending or email verification is off.
func (s *Service) AdminSettingEnabled(ctx context.Context, value any, settingID string) (bool, error) {
	if settingID != EnableUserTwoFactor {
		return true, nil
	}
	admin, err := s.AdminValues(ctx)
	if err != nil {
		return false, err
	}
	if value == TwoFactorDisabled || value == TwoFactorEnabledAlways {
		return false, nil
	}
	return admin.Bool(EmailSending) && admin.Bool(UseEmailVerification), nil
}
