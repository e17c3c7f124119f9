// components/settings/settings.go
//
// Settings component – user and admin settings over HTTP.
//
// Context
//   Settings are edited one row at a time.  The browser sends the row id
//   (`settingRowId`, or `mongoId` from older clients) plus the new value under
//   the setting id.  Every successful edit answers the fresh public settings
//   map, so the client can re-render without another round trip.
//
// Workflow
//   GET  /        own user settings, minus rows an admin setting disables
//   PUT  /        edit one own user setting
//   GET  /admin   admin settings; password values decrypted
//   PUT  /admin   edit one admin setting; password values encrypted
//   GET  /apis    forms the session may edit (search, sort, and paging)
//
// Notes
//   •  Rows that belong to another user answer 404, like missing rows.
//   •  An empty password value is stored as-is so an operator can clear it.
//
//------------------------------------------------------------------------------

package settings

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/component"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/history"
	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
	setsvc "github.com/yanizio/beacon/internal/settings"
)

// APIListFormID gates the form listing.
const APIListFormID = "route-settings-api-settings"

const defaultMaxEdited = 5

var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component serves the settings routes.
type Component struct {
	deps component.Deps
}

func (c *Component) Name() string         { return "settings" }
func (c *Component) Migrations() []string { return setsvc.Migrations }

// Init keeps the shared services.
func (c *Component) Init(d component.Deps) error {
	if d.Engine == nil || d.Settings == nil || d.SettingsStore == nil || d.Crypter == nil {
		return errors.New("settings: engine, settings service, store, and crypter required")
	}
	c.deps = d
	return nil
}

func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", c.handleUserList)
	r.Put("/", c.handleUserEdit)
	r.Get("/admin", c.handleAdminList)
	r.Put("/admin", c.handleAdminEdit)
	r.Get("/apis", c.handleAPIs)
	return r
}

func init() { component.Register(&Component{}) }

/*──────────────────────────── user settings ────────────────────────────────*/

func (c *Component) handleUserList(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, setsvc.UserSettingsFormID) {
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)

	// Resolving the values creates missing rows from their defaults.
	if _, err := c.deps.Settings.Settings(ctx, sess, false); err != nil {
		reply.Internal(w, "user settings lookup failed", err)
		return
	}
	rows, err := c.deps.SettingsStore.UserSettings(ctx, sess.UserID)
	if err != nil {
		reply.Internal(w, "user settings lookup failed", err)
		return
	}
	enabled, err := c.deps.Settings.EnabledUserSettings(ctx, sess)
	if err != nil {
		reply.Internal(w, "enabled settings lookup failed", err)
		return
	}
	rows, err = c.deps.Settings.FilterUserSettings(ctx, rows, enabled)
	if err != nil {
		reply.Internal(w, "user settings filter failed", err)
		return
	}
	reply.OK(w, rows)
}

func (c *Component) handleUserEdit(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, setsvc.UserSettingsFormID) {
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	p := form.PayloadFrom(ctx)

	rowID, ok := rowIDFrom(p)
	if !ok {
		badRowID(w)
		return
	}
	row, err := c.deps.SettingsStore.UserSettingByRow(ctx, rowID)
	if err == nil && row.UserID != sess.UserID {
		zap.S().Errorw("user setting belongs to another user", "row", rowID, "user", sess.UserID)
		err = setsvc.ErrNotFound
	}
	if errors.Is(err, setsvc.ErrNotFound) {
		settingNotFound(w, rowID)
		return
	}
	if err != nil {
		reply.Internal(w, "user setting lookup failed", err)
		return
	}
	if p[row.SettingID] == nil {
		valueMissing(w, row.SettingID)
		return
	}

	enabled, err := c.deps.Settings.EnabledUserSettings(ctx, sess)
	if err != nil {
		reply.Internal(w, "enabled settings lookup failed", err)
		return
	}
	ok, err = c.deps.Settings.AdminSettingEnabled(ctx, enabled[row.EnabledID], row.SettingID)
	if err != nil {
		reply.Internal(w, "enabled settings lookup failed", err)
		return
	}
	if !ok {
		zap.S().Errorw("user setting is disabled by admin settings", "setting", row.SettingID,
			"control", enabled[row.EnabledID])
		reply.Unauthorised(w)
		return
	}

	row.Value = form.Stringify(p[row.SettingID])
	if err := c.deps.SettingsStore.UpdateUserSetting(ctx, row); err != nil {
		if errors.Is(err, setsvc.ErrNotFound) {
			settingNotFound(w, rowID)
			return
		}
		reply.Internal(w, "user setting update failed", err)
		return
	}
	c.deps.Settings.InvalidateUser(sess.UserID)
	zap.S().Infow("user setting changed", "setting", row.SettingID, "user", sess.UserID)
	c.answerPublic(ctx, w, sess)
}

/*──────────────────────────── admin settings ───────────────────────────────*/

func (c *Component) handleAdminList(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, setsvc.AdminSettingsFormID) {
		return
	}
	rows, err := c.deps.SettingsStore.AdminSettings(r.Context())
	if err != nil {
		reply.Internal(w, "admin settings lookup failed", err)
		return
	}
	for i := range rows {
		if !rows[i].Password || rows[i].Value == "" {
			continue
		}
		plain, err := c.deps.Crypter.Decrypt(rows[i].Value)
		if err != nil {
			zap.S().Errorw("admin password setting could not be decrypted", "setting", rows[i].SettingID, "err", err)
			plain = ""
		}
		rows[i].Value = plain
	}
	reply.OK(w, rows)
}

func (c *Component) handleAdminEdit(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, setsvc.AdminSettingsFormID) {
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	p := form.PayloadFrom(ctx)

	rowID, ok := rowIDFrom(p)
	if !ok {
		badRowID(w)
		return
	}
	rows, err := c.deps.SettingsStore.AdminSettings(ctx)
	if err != nil {
		reply.Internal(w, "admin settings lookup failed", err)
		return
	}
	var row *setsvc.AdminSetting
	for i := range rows {
		if rows[i].ID == rowID {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		settingNotFound(w, rowID)
		return
	}
	if p[row.SettingID] == nil {
		valueMissing(w, row.SettingID)
		return
	}

	value := form.Stringify(p[row.SettingID])
	if row.Password && value != "" {
		if value, err = c.deps.Crypter.Encrypt(value); err != nil {
			reply.Internal(w, "admin password setting encrypt failed", err)
			return
		}
	}
	row.Value = value
	row.Edited = history.Edited(row.Edited, sess.UserID, c.deps.AdminInt(ctx, setsvc.MaxEditedLogs, defaultMaxEdited))
	if err := c.deps.SettingsStore.UpdateAdmin(ctx, row); err != nil {
		if errors.Is(err, setsvc.ErrNotFound) {
			settingNotFound(w, rowID)
			return
		}
		reply.Internal(w, "admin setting update failed", err)
		return
	}
	if err := c.deps.Settings.Reload(ctx); err != nil {
		reply.Internal(w, "settings reload failed", err)
		return
	}
	zap.S().Infow("admin setting changed", "setting", row.SettingID, "by", sess.UserID)
	c.answerPublic(ctx, w, sess)
}

/*──────────────────────────── form listing ─────────────────────────────────*/

func (c *Component) handleAPIs(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, APIListFormID) {
		return
	}
	sess := session.FromContext(r.Context())
	q := r.URL.Query()

	query := form.Query{
		EditorLevel:   sess.Level(),
		EditorID:      sess.UserID,
		Search:        q.Get("search"),
		CaseSensitive: q.Get("caseSensitive") == "true",
		Fields:        []string{"formId", "path", "method"},
		SortBy:        q.Get("sortBy"),
		Desc:          q.Get("sortOr") == "desc",
	}
	if f := strings.TrimSpace(q.Get("searchFields")); f != "" {
		query.Fields = nil
		for _, name := range strings.Split(f, ",") {
			query.Fields = append(query.Fields, strings.TrimSpace(name))
		}
	}
	query.Page, _ = strconv.Atoi(q.Get("page"))
	query.PerPage, _ = strconv.Atoi(q.Get("itemsPerPage"))

	total, list, err := c.deps.Forms.Search(r.Context(), query)
	if err != nil {
		reply.Internal(w, "form search failed", err)
		return
	}
	if list == nil {
		list = []form.Form{}
	}
	reply.OK(w, map[string]any{"totalCount": total, "result": list})
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

func (c *Component) answerPublic(ctx context.Context, w http.ResponseWriter, sess *session.Session) {
	pub, err := c.deps.Settings.PublicSettings(ctx, sess, false)
	if err != nil {
		reply.Internal(w, "public settings lookup failed", err)
		return
	}
	reply.OK(w, pub)
}

// rowIDFrom reads the numeric row id of the setting being edited.
func rowIDFrom(p form.Payload) (int64, bool) {
	for _, key := range []string{"settingRowId", "mongoId"} {
		if !p.Has(key) {
			continue
		}
		n, ok := p.Int(key)
		if !ok || n <= 0 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func badRowID(w http.ResponseWriter) {
	zap.S().Infow("setting row id missing or malformed")
	reply.JSON(w, http.StatusBadRequest, reply.Obj{"msg": "Setting id not valid", "mongoIdNotValid": true})
}

func settingNotFound(w http.ResponseWriter, rowID int64) {
	zap.S().Errorw("setting row not found", "row", rowID)
	reply.JSON(w, http.StatusNotFound, reply.Obj{"msg": "Setting was not found", "settingNotFoundError": true})
}

func valueMissing(w http.ResponseWriter, settingID string) {
	zap.S().Errorw("setting value missing from payload", "setting", settingID)
	reply.JSON(w, http.StatusBadRequest, reply.Obj{"msg": "Bad request", "settingValueNotFoundError": true})
}
