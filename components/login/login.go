// components/login/login.go
//
// Login component – session bootstrap, password login, and the second factor.
//
// Context
//   The browser talks to three routes:
//
//     POST /access   session housekeeping selected by `from`
//     POST /         username and password
//     POST /two      emailed second-factor code
//
//   /access is exempt from the CSRF check because it is where CSRF secrets
//   come from.  The two login routes are gated on authFlow forms, so only
//   anonymous sessions reach them.
//
// Workflow
//   POST /
//     1.  Gate beacon-main-login.
//     2.  Unknown user                         → 401.
//     3.  Cooldown active                      → 403.
//     4.  Wrong password                       → count the attempt, 401.
//     5.  Level below loginAccessLevel         → 401.
//     6.  Second factor required               → mail a code, proceedToTwoFa.
//     7.  Otherwise log the session in.
//
// Notes
//   •  Unknown users and wrong passwords share one answer.
//   •  Attempt counting is find-then-update; two racing attempts may both
//      count as the first.
//
//------------------------------------------------------------------------------

package login

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/acl"
	"github.com/yanizio/beacon/internal/auth"
	"github.com/yanizio/beacon/internal/component"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/metrics"
	"github.com/yanizio/beacon/internal/reply"
	"github.com/yanizio/beacon/internal/requestinfo"
	"github.com/yanizio/beacon/internal/session"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

// Form ids of the two login steps.
const (
	MainFormID  = "beacon-main-login"
	TwoFAFormID = "beacon-twofa-login"
)

// AccessPath is the route the CSRF middleware must let through.
const AccessPath = "/access"

const (
	defaultMaxLoginLogs = 5
	defaultCooldownMins = 5

	msgInvalid  = "invalid username and/or password"
	msgCooldown = "user must wait a cooldown period before trying again"
)

var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component serves the login routes.
type Component struct {
	deps component.Deps
}

func (c *Component) Name() string { return "login" }

// Migrations creates the group tables the session groups are read from.
func (c *Component) Migrations() []string { return acl.Migrations }

// Init keeps the shared services.
func (c *Component) Init(d component.Deps) error {
	if d.Engine == nil || d.Settings == nil || d.Users == nil || d.Mail == nil {
		return errors.New("login: engine, settings, users, and mail required")
	}
	c.deps = d
	return nil
}

func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.handleLogin)
	r.Post("/two", c.handleTwoFactor)
	r.Post(AccessPath, c.handleAccess)
	return r
}

func init() { component.Register(&Component{}) }

/*──────────────────────────── password step ────────────────────────────────*/

func (c *Component) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, MainFormID) {
		return
	}
	ctx := r.Context()
	p := form.PayloadFrom(ctx)
	now := c.deps.Clock()

	u, err := c.deps.Users.FindByUsername(ctx, p.String("username"))
	if errors.Is(err, user.ErrNotFound) {
		zap.S().Infow("login for unknown user", "username", p.String("username"))
		invalid(w, "unknown")
		return
	}
	if err != nil {
		reply.Internal(w, "login user lookup failed", err)
		return
	}

	admin, err := c.deps.Settings.AdminValues(ctx)
	if err != nil {
		reply.Internal(w, "login settings lookup failed", err)
		return
	}
	policy := policyFrom(admin)
	if auth.UnderCooldown(&u.Security, policy, now) {
		coolingDown(w, u.Username)
		return
	}

	if !auth.CheckPassword(u.PasswordHash, p.String("password")) {
		c.failAttempt(ctx, r, u, policy, now)
		invalid(w, "wrong_password")
		return
	}

	f, err := c.deps.Forms.FindByFormID(ctx, MainFormID)
	if err != nil {
		reply.Internal(w, "login form lookup failed", err)
		return
	}
	if lvl := f.EditorOptionInt("loginAccessLevel", 0); u.UserLevel < lvl {
		zap.S().Infow("login below loginAccessLevel", "username", u.Username, "level", u.UserLevel, "required", lvl)
		metrics.LoginAttemptsTotal.WithLabelValues("level_too_low").Inc()
		reply.JSON(w, http.StatusUnauthorized, reply.Obj{"msg": "Unauthorised", "unauthorised": true, "loggedIn": false})
		return
	}

	required, err := c.twoFactorRequired(ctx, u, admin)
	if err != nil {
		reply.Internal(w, "two factor lookup failed", err)
		return
	}
	if required {
		c.startTwoFactor(w, r, u, now)
		return
	}
	c.completeLogin(w, r, u, now)
}

/*──────────────────────────── second factor ────────────────────────────────*/

func (c *Component) twoFactorRequired(ctx context.Context, u *user.User, admin settings.Values) (bool, error) {
	mode := admin.String(settings.UseTwoFactorAuth)
	if mode == auth.TwoFactorDisabled || mode == "" {
		return false, nil
	}
	optIn, err := c.deps.Settings.GetOrDefault(ctx, u.ID, settings.EnableUserTwoFactor)
	if err != nil {
		return false, err
	}
	// Codes need a working mailer and an address the user has proven.
	mailReady := admin.Bool(settings.EmailSending) && admin.Bool(settings.UseEmailVerification) &&
		u.ContactEmail() != ""
	return auth.TwoFactorRequired(mode, form.Truthy(optIn), mailReady), nil
}

func (c *Component) startTwoFactor(w http.ResponseWriter, r *http.Request, u *user.User, now time.Time) {
	ctx := r.Context()
	code, err := c.deps.Tokens.TwoFactorCode()
	if err != nil {
		reply.Internal(w, "two factor code failed", err)
		return
	}
	u.Security.TwoFactor = &user.TwoFactor{NextCode: code, Expires: now.Add(auth.TwoFactorLifetime).UTC()}
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "two factor save failed", err)
		return
	}

	sess := session.FromContext(ctx)
	sess.TwoFactorUser = u.Username
	sess.Touch()

	c.deps.Mail.SendByID(ctx, "two-factor-code-email", map[string]string{
		"to":            u.ContactEmail(),
		"username":      u.Username,
		"twoFactorCode": code,
		"codeLife":      strconv.Itoa(int(auth.TwoFactorLifetime / time.Minute)),
		"device":        requestinfo.AgentFrom(ctx).String(),
	})
	metrics.LoginAttemptsTotal.WithLabelValues("two_factor").Inc()
	zap.S().Infow("two factor code sent", "username", u.Username)
	reply.OK(w, reply.Obj{"loggedIn": false, "proceedToTwoFa": true, "username": u.Username})
}

func (c *Component) handleTwoFactor(w http.ResponseWriter, r *http.Request) {
	if !c.deps.Engine.Check(w, r, TwoFAFormID) {
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	now := c.deps.Clock()

	if sess.TwoFactorUser == "" {
		zap.S().Infow("two factor code without a pending login")
		reply.JSON(w, http.StatusUnauthorized, reply.Obj{"loggedIn": false, "error": "no pending login", "twoFactorError": true})
		return
	}
	u, err := c.deps.Users.FindByUsername(ctx, sess.TwoFactorUser)
	if errors.Is(err, user.ErrNotFound) {
		sess.TwoFactorUser = ""
		sess.Touch()
		invalid(w, "unknown")
		return
	}
	if err != nil {
		reply.Internal(w, "two factor user lookup failed", err)
		return
	}

	admin, err := c.deps.Settings.AdminValues(ctx)
	if err != nil {
		reply.Internal(w, "login settings lookup failed", err)
		return
	}
	policy := policyFrom(admin)
	if auth.UnderCooldown(&u.Security, policy, now) {
		coolingDown(w, u.Username)
		return
	}

	code := form.PayloadFrom(ctx).String("twofacode")
	if !auth.CheckTwoFactor(u.Security.TwoFactor, code, now) {
		if locked := c.failAttempt(ctx, r, u, policy, now); locked {
			sess.TwoFactorUser = ""
			sess.Touch()
		}
		metrics.LoginAttemptsTotal.WithLabelValues("wrong_code").Inc()
		reply.JSON(w, http.StatusUnauthorized, reply.Obj{
			"loggedIn":       false,
			"error":          "invalid or expired code",
			"twoFactorError": true,
			"errors":         map[string]string{"twofacode": "wrong_code"},
		})
		return
	}
	c.completeLogin(w, r, u, now)
}

/*──────────────────────────── shared steps ─────────────────────────────────*/

// failAttempt counts a failed attempt and persists it.  It reports whether
// the attempt started a cooldown.
func (c *Component) failAttempt(ctx context.Context, r *http.Request, u *user.User, p auth.Policy, now time.Time) bool {
	locked := auth.RegisterFailure(&u.Security, p, now)
	max := c.deps.AdminInt(ctx, settings.MaxLoginLogs, defaultMaxLoginLogs)
	u.Security.LastAttempts = user.AppendLoginLog(u.Security.LastAttempts, loginEntry(r, now), max)
	if locked {
		u.Security.TwoFactor = nil
		zap.S().Infow("login cooldown started", "username", u.Username)
	}
	if err := c.deps.Users.Update(ctx, u); err != nil {
		zap.S().Errorw("failed attempt not saved", "username", u.Username, "err", err)
	}
	return locked
}

// completeLogin clears the attempt state and promotes the session.
func (c *Component) completeLogin(w http.ResponseWriter, r *http.Request, u *user.User, now time.Time) {
	ctx := r.Context()
	auth.ClearAttempts(&u.Security)
	u.Security.NewPassLink = nil
	u.Security.TwoFactor = nil
	max := c.deps.AdminInt(ctx, settings.MaxLoginLogs, defaultMaxLoginLogs)
	u.Security.LastLogins = user.AppendLoginLog(u.Security.LastLogins, loginEntry(r, now), max)
	if err := c.deps.Users.Update(ctx, u); err != nil {
		reply.Internal(w, "login save failed", err)
		return
	}

	var groups []string
	if c.deps.DB != nil {
		var err error
		if groups, err = acl.UserGroups(ctx, c.deps.DB, u.ID); err != nil {
			reply.Internal(w, "group lookup failed", err)
			return
		}
	}

	sess := session.FromContext(ctx)
	remember := sess.RememberMe || form.PayloadFrom(ctx).Bool("remember-me")
	sess.Login(u.ID, u.Username, u.UserLevel, u.Verified())
	sess.Groups = groups
	sess.RememberMe = remember

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	zap.S().Infow("user logged in", "username", u.Username, "level", u.UserLevel)
	reply.OK(w, reply.Obj{
		"loggedIn":        true,
		"username":        u.Username,
		"userLevel":       u.UserLevel,
		"accountVerified": u.Verified(),
		"browserId":       sess.BrowserID,
	})
}

func policyFrom(admin settings.Values) auth.Policy {
	mins := admin.Int(settings.LoginCooldownTime)
	if mins <= 0 {
		mins = defaultCooldownMins
	}
	return auth.Policy{MaxAttempts: admin.Int(settings.MaxLoginAttempts), Cooldown: time.Duration(mins) * time.Minute}
}

// loginEntry describes the request for the login logs.
func loginEntry(r *http.Request, now time.Time) user.LoginEntry {
	e := user.LoginEntry{Date: now.UTC()}
	if ri := requestinfo.FromContext(r.Context()); ri != nil {
		e.IP = ri.IPString()
		e.Browser = ri.Agent.Browser
		e.OS = ri.Agent.OS
		e.Device = ri.Agent.Device
		e.Country = ri.Geo.CountryISO
	}
	return e
}

func invalid(w http.ResponseWriter, result string) {
	metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()
	reply.JSON(w, http.StatusUnauthorized, reply.Obj{"loggedIn": false, "error": msgInvalid})
}

func coolingDown(w http.ResponseWriter, username string) {
	zap.S().Infow("login during cooldown", "username", username)
	metrics.LoginAttemptsTotal.WithLabelValues("cooldown").Inc()
	reply.JSON(w, http.StatusForbidden, reply.Obj{"loggedIn": false, "error": msgCooldown, "cooldown": true})
}
