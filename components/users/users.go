// components/users/users.go
//
// Users component – account administration, registration, and self service.
//
// Context
//   Every route is gated on a fixed form record, so the rights and the field
//   rules of each operation are whatever the operator stored for that form.
//   The routes fall into three groups:
//
//     users.go     list, read one, edit, delete, register
//     own.go       own profile, exposure, self delete, password change
//     tokens.go    password reset and email verification links
//
// Workflow
//   GET    /            read-users         accounts below the caller's level
//   GET    /{userId}    read-one-user      by username, then id; redacted
//   PUT    /            edit-user-form     another account's email, name, level
//   POST   /delete      delete-users       several accounts at once
//   POST   /            new-user-form      registration
//
// Notes
//   •  The administration routes are gated by Engine.Gate before the handler
//      runs; registration checks the public-registration toggle first and
//      gates inside the handler.
//   •  "Taken" answers are 200 with an `errors` map so the client can mark
//      the field.
//   •  A read-one-user viewer who may see no field at all gets the same 404
//      as for a missing account.
//
//------------------------------------------------------------------------------

package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/acl"
	"github.com/yanizio/beacon/internal/auth"
	"github.com/yanizio/beacon/internal/component"
	"github.com/yanizio/beacon/internal/exposure"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/history"
	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

// Form ids gating the routes.
const (
	ReadUsersFormID     = "read-users"
	ReadOneUserFormID   = "read-one-user"
	EditUserFormID      = "edit-user-form"
	DeleteUsersFormID   = "delete-users"
	NewUserFormID       = "new-user-form"
	ReadProfileFormID   = "read-profile"
	EditProfileFormID   = "edit-profile-form"
	ChangePassFormID    = "change-password-form"
	DeleteProfileFormID = "delete-profile-form"
	NewPassRequestID    = "new-pass-request-form"
	NewPassFormID       = "new-pass-w-token-form"
	VerifyFormID        = "verify-w-token"
	NewVerifyFormID     = "new-email-verification"
)

const defaultEditedLogs = 5

var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component serves the user routes.
type Component struct {
	deps component.Deps
}

func (c *Component) Name() string         { return "users" }
func (c *Component) Migrations() []string { return user.Migrations }

// Init keeps the shared services.
func (c *Component) Init(d component.Deps) error {
	if d.Engine == nil || d.Forms == nil || d.Users == nil || d.Settings == nil || d.SettingsStore == nil ||
		d.Exposure == nil || d.Mail == nil {
		return errors.New("users: engine, forms, users, settings, exposure, and mail required")
	}
	c.deps = d
	return nil
}

func (c *Component) Routes() chi.Router {
	gate := c.deps.Engine.Gate

	r := chi.NewRouter()
	r.With(gate(ReadUsersFormID)).Get("/", c.handleList)
	r.With(gate(EditUserFormID)).Put("/", c.handleEdit)
	r.Post("/", c.handleRegister)
	r.With(gate(DeleteUsersFormID)).Post("/delete", c.handleDelete)

	r.Group(func(r chi.Router) {
		r.Use(acl.RequireLogin)
		r.Get("/own/profile", c.handleReadProfile)
		r.Put("/own/profile", c.handleEditProfile)
		r.Post("/own/delete", c.handleDeleteOwn)
		r.Post("/own/changepass", c.handleChangePass)
		r.Put("/user/exposure", c.handleExposure)
		r.Post("/newemailverification", c.handleNewVerification)
	})

	r.Post("/newpassrequest", c.handleNewPassRequest)
	r.Post("/newpass", c.handleNewPass)
	r.Get("/verify/{token}", c.handleVerify)

	r.With(gate(ReadOneUserFormID)).Get("/{userId}", c.handleReadOne)
	return r
}

func init() { component.Register(&Component{}) }

/*──────────────────────────── administration ───────────────────────────────*/

func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	list, err := c.deps.Users.ListBelowLevel(r.Context(), sess.Level())
	if err != nil {
		reply.Internal(w, "user listing failed", err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for i := range list {
		out = append(out, list[i].Public())
	}
	reply.OK(w, out)
}

func (c *Component) handleReadOne(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	ref := chi.URLParam(r, "userId")

	u, err := c.lookup(ctx, ref)
	if errors.Is(err, user.ErrNotFound) {
		zap.S().Infow("user to view not found", "ref", ref, "viewer", sess.Username)
		userNotFound(w)
		return
	}
	if err != nil {
		reply.Internal(w, "user lookup failed", err)
		return
	}

	levels, err := c.deps.Exposure.Resolve(ctx, u.Exposure)
	if err != nil {
		reply.Internal(w, "exposure lookup failed", err)
		return
	}
	f, err := c.deps.Forms.FindByFormID(ctx, ReadOneUserFormID)
	if err != nil {
		reply.Internal(w, "form lookup failed", err)
		return
	}

	doc := u.Public()
	if sess.Level() >= f.EditorRightsLevel {
		doc["exposure"] = levels
		reply.OK(w, doc)
		return
	}
	out := exposure.Redact(doc, levels, sess.Level())
	if len(out) == 0 {
		zap.S().Infow("no visible fields, answering not found", "ref", ref, "viewer", sess.Username)
		userNotFound(w)
		return
	}
	reply.OK(w, out)
}

// lookup finds an account by username, then by id.
func (c *Component) lookup(ctx context.Context, ref string) (*user.User, error) {
	u, err := c.deps.Users.FindByUsername(ctx, ref)
	if !errors.Is(err, user.ErrNotFound) {
		return u, err
	}
	if _, perr := uuid.Parse(ref); perr != nil {
		return nil, user.ErrNotFound
	}
	return c.deps.Users.FindByID(ctx, ref)
}

func (c *Component) handleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	p := form.PayloadFrom(ctx)
	targetID := p.String("userId")

	taken, err := user.EmailTaken(ctx, c.deps.Users, p.String("email"), targetID)
	if err != nil {
		reply.Internal(w, "email lookup failed", err)
		return
	}
	if taken {
		emailTaken(w)
		return
	}

	level, _ := p.Int("userLevel")
	switch {
	case level >= sess.Level():
		zap.S().Infow("user level above editor", "editor", sess.Username, "level", level)
		notAuthorised(w)
		return
	case level < 1:
		zap.S().Infow("user level below 1", "editor", sess.Username, "level", level)
		reply.JSON(w, http.StatusBadRequest, reply.Obj{"badRequest": true, "msg": "Bad request"})
		return
	}

	u, err := c.deps.Users.FindByID(ctx, targetID)
	if errors.Is(err, user.ErrNotFound) {
		reply.JSON(w, http.StatusNotFound, reply.Obj{
			"msg":               "User to update was not found. It has propably been deleted by another user.",
			"userNotFoundError": true,
		})
		return
	}
	if err != nil {
		reply.Internal(w, "user lookup failed", err)
		return
	}
	if u.ID == sess.UserID || u.UserLevel >= sess.Level() {
		zap.S().Infow("edit of own or higher account refused", "editor", sess.Username, "target", u.Username)
		notAuthorised(w)
		return
	}

	token, err := c.prepareEmailChange(ctx, u, p.String("email"))
	if err != nil {
		reply.Internal(w, "email change failed", err)
		return
	}
	u.Email = p.String("email")
	u.Name = p.String("name")
	u.UserLevel = level
	u.Edited = history.Edited(u.Edited, sess.UserID, c.editedLogs(ctx))
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "user update failed", err)
		return
	}
	c.mailVerification(ctx, u, token)
	zap.S().Infow("user edited", "editor", sess.Username, "target", u.Username, "level", level)
	reply.OK(w, u.Public())
}

func (c *Component) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	deleted := []string{}
	var errs []reply.Obj
	for _, id := range form.PayloadFrom(ctx).Strings("users") {
		u, err := c.deps.Users.FindByID(ctx, id)
		if errors.Is(err, user.ErrNotFound) {
			errs = append(errs, reply.Obj{"userId": id, "userNotFoundError": true, "errorMsg": "User not found."})
			continue
		}
		if err != nil {
			reply.Internal(w, "user lookup failed", err)
			return
		}
		if u.UserLevel >= sess.Level() {
			zap.S().Infow("delete of equal or higher account refused", "editor", sess.Username, "target", u.Username)
			errs = append(errs, reply.Obj{
				"userId":                      id,
				"notAllowedToDeleteUserError": true,
				"errorMsg":                    "Not allowed to delete user (userLevel lower or same than user being deleted).",
			})
			continue
		}
		if err := c.remove(ctx, u); err != nil {
			zap.S().Errorw("user delete failed", "target", u.Username, "err", err)
			errs = append(errs, reply.Obj{"userId": id, "dbError": true, "errorMsg": err.Error()})
			continue
		}
		deleted = append(deleted, u.Username)
	}

	body := reply.Obj{"deletionResponse": true, "allDeleted": len(errs) == 0, "deleted": deleted}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	zap.S().Infow("users deleted", "editor", sess.Username, "deleted", deleted, "errors", len(errs))
	reply.OK(w, body)
}

// remove deletes u and its user settings.
func (c *Component) remove(ctx context.Context, u *user.User) error {
	if err := c.deps.Users.Delete(ctx, u.ID); err != nil {
		return err
	}
	if err := c.deps.SettingsStore.DeleteUserSettings(ctx, u.ID); err != nil {
		return err
	}
	c.deps.Settings.InvalidateUser(u.ID)
	return nil
}

/*──────────────────────────── registration ─────────────────────────────────*/

func (c *Component) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	admin, err := c.deps.Settings.AdminValues(ctx)
	if err != nil {
		reply.Internal(w, "settings lookup failed", err)
		return
	}
	if !sess.IsLoggedIn() && !admin.Bool(settings.PublicUserRegistration) {
		zap.S().Infow("public registration is closed")
		reply.Unauthorised(w)
		return
	}
	if !c.deps.Engine.Check(w, r, NewUserFormID) {
		return
	}
	p := form.PayloadFrom(ctx)
	username := p.String("username")

	if _, err := c.deps.Users.FindByUsername(ctx, username); err == nil {
		usernameTaken(w)
		return
	} else if !errors.Is(err, user.ErrNotFound) {
		reply.Internal(w, "username lookup failed", err)
		return
	}
	taken, err := user.EmailTaken(ctx, c.deps.Users, p.String("email"), "")
	if err != nil {
		reply.Internal(w, "email lookup failed", err)
		return
	}
	if taken {
		emailTaken(w)
		return
	}

	hash, err := auth.HashPassword(p.String("password"))
	if err != nil {
		reply.Internal(w, "password hash failed", err)
		return
	}
	count, err := c.deps.Users.Count(ctx)
	if err != nil {
		reply.Internal(w, "user count failed", err)
		return
	}
	f, err := c.deps.Forms.FindByFormID(ctx, NewUserFormID)
	if err != nil {
		reply.Internal(w, "form lookup failed", err)
		return
	}
	level := f.EditorOptionInt("newUserLevel", 1)
	if count == 0 {
		level = user.SuperAdminLevel
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        p.String("email"),
		Name:         p.String("name"),
		UserLevel:    level,
		PasswordHash: hash,
		Created: history.Created{
			By:         sess.UserID,
			Date:       c.deps.Clock().UTC(),
			PublicForm: !sess.IsLoggedIn(),
		},
	}
	if err := c.deps.Users.Create(ctx, u); errors.Is(err, user.ErrDuplicate) {
		usernameTaken(w)
		return
	} else if err != nil {
		reply.Internal(w, "user create failed", err)
		return
	}
	zap.S().Infow("user created", "username", u.Username, "level", level, "creator", sess.Username, "publicForm", !sess.IsLoggedIn())

	c.deps.Mail.SendByID(ctx, "new-user-email", map[string]string{"to": u.Email, "username": u.Username})
	if admin.Bool(settings.UseEmailVerification) {
		if err := c.startVerification(ctx, u); err != nil {
			reply.Internal(w, "verification start failed", err)
			return
		}
	}
	reply.OK(w, u.Public())
}

/*──────────────────────────── shared ───────────────────────────────────────*/

func (c *Component) editedLogs(ctx context.Context) int {
	return c.deps.AdminInt(ctx, settings.MaxEditedLogs, defaultEditedLogs)
}

func userNotFound(w http.ResponseWriter) {
	reply.JSON(w, http.StatusNotFound, reply.Obj{"msg": "User was not found", "userNotFoundError": true})
}

func notAuthorised(w http.ResponseWriter) {
	reply.JSON(w, http.StatusUnauthorized, reply.Obj{"unauthorised": true, "msg": "User not authorised"})
}

func emailTaken(w http.ResponseWriter) {
	reply.OK(w, reply.Obj{
		"msg":        "Bad request. Validation errors.",
		"errors":     map[string]string{"email": "email_taken"},
		"emailTaken": true,
	})
}

func usernameTaken(w http.ResponseWriter) {
	reply.OK(w, reply.Obj{
		"msg":           "Bad request. Validation errors.",
		"errors":        map[string]string{"username": "username_taken"},
		"usernameTaken": true,
	})
}

func wrongPassword(w http.ResponseWriter) {
	reply.JSON(w, http.StatusUnauthorized, reply.Obj{
		"error":      "invalid password",
		"loggedIn":   true,
		"noRedirect": true,
		"errors":     map[string]string{"curPassword": "wrong_password"},
	})
}
