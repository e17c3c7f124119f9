// components/users/tokens.go
//
// Emailed links: password reset and address verification.
//
// Context
//   A reset link carries a token stored in security.newPassLink with an
//   expiry of `new-pass-link-lifetime` minutes.  The request route always
//   gives the same answer so it cannot be used to discover addresses.
//
//   A verification link carries the token in security.verifyEmail.  While
//   an address is unverified the account keeps its last verified address
//   as oldEmail, and mail goes there.
//
// Notes
//   •  A reset link is not resent to the same account within resendCooldown.
//   •  Changing the email with verification off clears the verification
//      state; with verification on it starts a new verification.
//
//------------------------------------------------------------------------------

package users

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/auth"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/history"
	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/session"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

const (
	resendCooldown      = 10 * time.Minute
	defaultLinkLifeMins = 30
)

/*──────────────────────────── password reset ───────────────────────────────*/

func (c *Component) handleNewPassRequest(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, NewPassRequestID) {
		return
	}
	ctx := r.Context()
	mono := func() { reply.OK(w, reply.Obj{"tryingToSend": true}) }

	admin, err := c.deps.Settings.AdminValues(ctx)
	if err != nil {
		zap.S().Errorw("settings lookup failed", "err", err)
		mono()
		return
	}
	if !admin.Bool(settings.ForgotPasswordFeature) {
		zap.S().Infow("reset link requested while the feature is off")
		mono()
		return
	}

	email := form.PayloadFrom(ctx).String("email")
	u, err := c.deps.Users.FindByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		u, err = c.deps.Users.FindByOldEmail(ctx, email)
	}
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			zap.S().Errorw("reset link user lookup failed", "err", err)
		}
		mono()
		return
	}

	now := c.deps.Clock()
	if link := u.Security.NewPassLink; link != nil && now.Before(link.Sent.Add(resendCooldown)) {
		zap.S().Infow("reset link recently sent", "user", u.Username)
		mono()
		return
	}
	token, err := c.deps.Tokens.Link()
	if err != nil {
		zap.S().Errorw("reset token failed", "err", err)
		mono()
		return
	}
	life := admin.Int(settings.NewPassLinkLifetime)
	if life <= 0 {
		life = defaultLinkLifeMins
	}
	u.Security.NewPassLink = &user.NewPassLink{
		Token:   token,
		Sent:    now.UTC(),
		Expires: now.Add(time.Duration(life) * time.Minute).UTC(),
	}
	if err := c.deps.Users.Update(ctx, u); err != nil {
		zap.S().Errorw("reset link not saved", "user", u.Username, "err", err)
		mono()
		return
	}

	c.deps.Mail.SendByID(ctx, "new-pass-link-email", map[string]string{
		"to":               email,
		"username":         u.Username,
		"newPassWTokenUrl": c.deps.ClientBaseURL + "/u/newpass/" + token,
		"linkLife":         strconv.Itoa(life),
	})
	zap.S().Infow("reset link sent", "user", u.Username)
	mono()
}

func (c *Component) handleNewPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	admin, err := c.deps.Settings.AdminValues(ctx)
	if err != nil {
		reply.Internal(w, "settings lookup failed", err)
		return
	}
	if !admin.Bool(settings.ForgotPasswordFeature) {
		reply.JSON(w, http.StatusNotFound, reply.Obj{"error": "unknown endpoint"})
		return
	}
	if !c.deps.Engine.Check(w, r, NewPassFormID) {
		return
	}
	p := form.PayloadFrom(ctx)

	u, err := c.deps.Users.FindByNewPassToken(ctx, p.String("token"))
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		reply.Internal(w, "token lookup failed", err)
		return
	}
	if u == nil || u.Security.NewPassLink == nil || !c.deps.Clock().Before(u.Security.NewPassLink.Expires) {
		tokenError(w)
		return
	}

	hash, err := auth.HashPassword(p.String("password"))
	if err != nil {
		reply.Internal(w, "password hash failed", err)
		return
	}
	u.PasswordHash = hash
	u.Security.NewPassLink = nil
	u.Edited = history.Edited(u.Edited, session.FromContext(ctx).UserID, c.editedLogs(ctx))
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "password update failed", err)
		return
	}
	if to := u.ContactEmail(); to != "" {
		c.deps.Mail.SendByID(ctx, "password-changed-email", map[string]string{"to": to, "username": u.Username})
	}
	zap.S().Infow("password reset with token", "user", u.Username)
	reply.OK(w, reply.Obj{"passwordUpdated": true})
}

/*──────────────────────────── verification ─────────────────────────────────*/

func (c *Component) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, VerifyFormID) {
		return
	}
	ctx := r.Context()
	u, err := c.deps.Users.FindByVerifyToken(ctx, chi.URLParam(r, "token"))
	if errors.Is(err, user.ErrNotFound) {
		tokenError(w)
		return
	}
	if err != nil {
		reply.Internal(w, "token lookup failed", err)
		return
	}

	u.Security.VerifyEmail = user.VerifyEmail{Verified: true}
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "verification save failed", err)
		return
	}
	if sess := session.FromContext(ctx); sess.UserID == u.ID && !sess.Verified {
		sess.Verified = true
		sess.Touch()
	}
	zap.S().Infow("email verified", "user", u.Username)
	reply.OK(w, reply.Obj{"verified": true, "username": u.Username})
}

func (c *Component) handleNewVerification(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.CheckAs(w, r, NewVerifyFormID, http.MethodGet) {
		return
	}
	ctx := r.Context()
	u, ok := c.ownAccount(w, r)
	if !ok {
		return
	}
	admin, err := c.deps.Settings.AdminValues(ctx)
	if err != nil {
		reply.Internal(w, "settings lookup failed", err)
		return
	}
	if !admin.Bool(settings.UseEmailVerification) || u.Verified() {
		zap.S().Infow("new verification refused", "user", u.Username,
			"useVerification", admin.Bool(settings.UseEmailVerification), "verified", u.Verified())
		reply.Unauthorised(w)
		return
	}
	if err := c.startVerification(ctx, u); err != nil {
		reply.Internal(w, "verification start failed", err)
		return
	}
	reply.OK(w, reply.Obj{"newVerificationSent": true})
}

// startVerification gives u a fresh verification token and mails the link.
func (c *Component) startVerification(ctx context.Context, u *user.User) error {
	token, err := c.deps.Tokens.VerifyLink(u.Username)
	if err != nil {
		return err
	}
	u.Security.VerifyEmail.Token = token
	u.Security.VerifyEmail.Verified = false
	if err := c.deps.Users.Update(ctx, u); err != nil {
		return err
	}
	c.mailVerification(ctx, u, token)
	return nil
}

// prepareEmailChange updates u's verification state for a move to email.
// It returns the token to mail, or "" when no verification is needed.
func (c *Component) prepareEmailChange(ctx context.Context, u *user.User, email string) (string, error) {
	if email == u.Email {
		return "", nil
	}
	admin, err := c.deps.Settings.AdminValues(ctx)
	if err != nil {
		return "", err
	}
	if !admin.Bool(settings.EmailSending) || !admin.Bool(settings.UseEmailVerification) {
		u.Security.VerifyEmail = user.VerifyEmail{}
		return "", nil
	}
	token, err := c.deps.Tokens.VerifyLink(u.Username)
	if err != nil {
		return "", err
	}
	old := u.Security.VerifyEmail.OldEmail
	if u.Verified() {
		old = u.Email
	}
	u.Security.VerifyEmail = user.VerifyEmail{Token: token, OldEmail: old}
	return token, nil
}

func (c *Component) mailVerification(ctx context.Context, u *user.User, token string) {
	if token == "" {
		return
	}
	c.deps.Mail.SendByID(ctx, "verify-account-email", map[string]string{
		"to":                  u.Email,
		"username":            u.Username,
		"verifyEmailTokenUrl": c.deps.ClientBaseURL + "/u/verify/" + token,
	})
}

func tokenError(w http.ResponseWriter) {
	reply.JSON(w, http.StatusUnauthorized, reply.Obj{"msg": "Token invalid or expired.", "tokenError": true})
}
