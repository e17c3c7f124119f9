// components/users/own.go
//
// Self-service routes.  Each one acts on the session's own account and, apart
// from the profile read, asks for the current password again.
//
//------------------------------------------------------------------------------

package users

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/auth"
	"github.com/yanizio/beacon/internal/exposure"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/history"
	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

// ownAccount loads the session's account or answers 404.
func (c *Component) ownAccount(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	sess := session.FromContext(r.Context())
	u, err := c.deps.Users.FindByID(r.Context(), sess.UserID)
	if errors.Is(err, user.ErrNotFound) {
		zap.S().Infow("session account is gone", "user", sess.Username)
		reply.JSON(w, http.StatusNotFound, reply.Obj{
			"msg":               "User was not found. It has propably been deleted.",
			"userNotFoundError": true,
		})
		return nil, false
	}
	if err != nil {
		reply.Internal(w, "user lookup failed", err)
		return nil, false
	}
	return u, true
}

func (c *Component) handleReadProfile(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, ReadProfileFormID) {
		return
	}
	u, ok := c.ownAccount(w, r)
	if !ok {
		return
	}
	levels, err := c.deps.Exposure.Resolve(r.Context(), u.Exposure)
	if err != nil {
		reply.Internal(w, "exposure lookup failed", err)
		return
	}
	doc := u.Public()
	doc["exposure"] = levels
	reply.OK(w, doc)
}

func (c *Component) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, EditProfileFormID) {
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	p := form.PayloadFrom(ctx)
	u, ok := c.ownAccount(w, r)
	if !ok {
		return
	}
	if !auth.CheckPassword(u.PasswordHash, p.String("curPassword")) {
		wrongPassword(w)
		return
	}

	taken, err := user.EmailTaken(ctx, c.deps.Users, p.String("email"), u.ID)
	if err != nil {
		reply.Internal(w, "email lookup failed", err)
		return
	}
	if taken {
		emailTaken(w)
		return
	}

	token, err := c.prepareEmailChange(ctx, u, p.String("email"))
	if err != nil {
		reply.Internal(w, "email change failed", err)
		return
	}
	u.Email = p.String("email")
	u.Name = p.String("name")
	u.Edited = history.Edited(u.Edited, u.ID, c.editedLogs(ctx))
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "profile update failed", err)
		return
	}
	if sess.Verified != u.Verified() {
		sess.Verified = u.Verified()
		sess.Touch()
	}
	c.mailVerification(ctx, u, token)
	reply.OK(w, u.Public())
}

// handleExposure stores field visibility levels.  Users edit their own levels
// when the admin allows it; editors of the exposure form edit anyone's.
func (c *Component) handleExposure(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, exposure.FormID) {
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	p := form.PayloadFrom(ctx)

	targetID := sess.UserID
	if id := p.String("userId"); id != "" {
		targetID = id
	}
	own := targetID == sess.UserID

	f, err := c.deps.Exposure.Form(ctx)
	if err != nil {
		reply.Internal(w, "exposure form lookup failed", err)
		return
	}
	if own {
		allowed, err := c.deps.Settings.Admin(ctx, settings.UsersCanSetExposure)
		if err != nil {
			reply.Internal(w, "settings lookup failed", err)
			return
		}
		if allowed != true {
			reply.JSON(w, http.StatusUnauthorized, reply.Obj{
				"msg":          "Unauthorised. Users cannot set exposure levels.",
				"unauthorised": true,
			})
			return
		}
	} else if f.EditorRightsLevel > sess.Level() {
		zap.S().Infow("exposure edit of another account refused", "editor", sess.Username, "required", f.EditorRightsLevel)
		reply.Unauthorised(w)
		return
	}

	u, err := c.deps.Users.FindByID(ctx, targetID)
	if errors.Is(err, user.ErrNotFound) {
		reply.JSON(w, http.StatusNotFound, reply.Obj{"msg": "User to update was not found.", "userNotFoundError": true})
		return
	}
	if err != nil {
		reply.Internal(w, "user lookup failed", err)
		return
	}
	if own && !auth.CheckPassword(u.PasswordHash, p.String("curPassword")) {
		wrongPassword(w)
		return
	}

	shown, _ := f.EditorOptions["showToUsers"].(map[string]any)
	levels := make(user.Exposure)
	f.EachField(false, func(fd *form.Field) {
		if fd.ID == "curPassword" || fd.Disabled || !p.Has(fd.ID) {
			return
		}
		opt, _ := shown[fd.ID].(map[string]any)
		if !form.Truthy(opt["value"]) {
			return
		}
		if lvl, ok := p.Int(fd.ID); ok {
			levels[fd.ID] = lvl
		}
	})
	if len(levels) == 0 {
		zap.S().Infow("no exposure fields to update", "target", u.Username)
		reply.JSON(w, http.StatusBadRequest, reply.Obj{
			"msg":           "Bad request. No valid fields to update were found.",
			"noFieldsFound": true,
		})
		return
	}

	u.Exposure = levels
	u.Edited = history.Edited(u.Edited, sess.UserID, c.editedLogs(ctx))
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "exposure update failed", err)
		return
	}
	zap.S().Infow("exposure levels saved", "editor", sess.Username, "target", u.Username)
	reply.OK(w, u.Public())
}

func (c *Component) handleDeleteOwn(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, DeleteProfileFormID) {
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	u, ok := c.ownAccount(w, r)
	if !ok {
		return
	}
	if !auth.CheckPassword(u.PasswordHash, form.PayloadFrom(ctx).String("password")) {
		reply.JSON(w, http.StatusUnauthorized, reply.Obj{"error": "invalid password", "loggedIn": true})
		return
	}
	if u.UserLevel >= user.SuperAdminLevel {
		zap.S().Infow("superadmin self delete refused", "user", u.Username)
		reply.JSON(w, http.StatusForbidden, reply.Obj{"error": "unauthorised", "loggedIn": true})
		return
	}

	if err := c.remove(ctx, u); err != nil {
		zap.S().Errorw("self delete failed", "user", u.Username, "err", err)
		reply.JSON(w, http.StatusInternalServerError, reply.Obj{"error": "db error", "dbError": true})
		return
	}
	if to := u.ContactEmail(); to != "" {
		c.deps.Mail.SendByID(ctx, "delete-own-account-email", map[string]string{"to": to, "username": u.Username})
	}
	sess.Logout()
	zap.S().Infow("user deleted own account", "user", u.Username)
	reply.OK(w, reply.Obj{"userDeleted": true})
}

func (c *Component) handleChangePass(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, ChangePassFormID) {
		return
	}
	ctx := r.Context()
	p := form.PayloadFrom(ctx)
	u, ok := c.ownAccount(w, r)
	if !ok {
		return
	}
	if !auth.CheckPassword(u.PasswordHash, p.String("curPassword")) {
		wrongPassword(w)
		return
	}

	hash, err := auth.HashPassword(p.String("password"))
	if err != nil {
		reply.Internal(w, "password hash failed", err)
		return
	}
	u.PasswordHash = hash
	u.Edited = history.Edited(u.Edited, u.ID, c.editedLogs(ctx))
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "password update failed", err)
		return
	}
	if to := u.ContactEmail(); to != "" {
		c.deps.Mail.SendByID(ctx, "password-changed-email", map[string]string{"to": to, "username": u.Username})
	}
	zap.S().Infow("password changed", "user", u.Username)
	reply.OK(w, u.Public())
}
