// cmd/web/app.go
//
// Process wiring shared by the CLI commands.
//
// Context
//   openApp does the work every command needs: config, file logging, the
//   database, and migrations.  runServe layers the services, the session
//   store, and the HTTP tree on top.
//
// Notes
//   •  The session store is Redis when redis.addr is set; otherwise sessions
//      live in process memory and vanish on restart.
//   •  The CSRF guard skips the login access route, which is where clients
//      fetch their first token.
//
//------------------------------------------------------------------------------

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/components/login"
	"github.com/yanizio/beacon/internal/auth"
	"github.com/yanizio/beacon/internal/component"
	"github.com/yanizio/beacon/internal/config"
	"github.com/yanizio/beacon/internal/database"
	"github.com/yanizio/beacon/internal/exposure"
	"github.com/yanizio/beacon/internal/form"
	"github.com/yanizio/beacon/internal/logger"
	"github.com/yanizio/beacon/internal/message"
	"github.com/yanizio/beacon/internal/middleware"
	"github.com/yanizio/beacon/internal/preset"
	"github.com/yanizio/beacon/internal/requestinfo"
	"github.com/yanizio/beacon/internal/server"
	"github.com/yanizio/beacon/internal/session"
	"github.com/yanizio/beacon/internal/settings"
	"github.com/yanizio/beacon/internal/user"
)

type app struct {
	cfg *config.Config
	db  *sqlx.DB

	forms    *form.SQLStore
	settings *settings.SQLStore
	users    *user.SQLStore
	emails   *message.SQLStore
}

// openApp loads config, switches to the file logger, opens MySQL, and
// applies every registered component's migrations.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := logger.New(cfg.Paths.Root, runningInTTY(), cfg.Env != config.EnvProduction); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	stmts := append([]string{}, message.Migrations...)
	for _, c := range component.All() {
		stmts = append(stmts, c.Migrations()...)
	}
	if err := database.Migrate(ctx, db, stmts...); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	zap.S().Infow("database ready", "statements", len(stmts))

	return &app{
		cfg:      cfg,
		db:       db,
		forms:    form.NewSQLStore(db),
		settings: settings.NewSQLStore(db),
		users:    user.NewSQLStore(db),
		emails:   message.NewSQLStore(db),
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// seed inserts the preset forms, admin settings, and email templates that
// are not in the database yet.
func (a *app) seed(ctx context.Context) (preset.Report, error) {
	cat, err := preset.Load()
	if err != nil {
		return preset.Report{}, fmt.Errorf("preset: %w", err)
	}
	rep, err := preset.NewSeeder(cat, a.forms, a.settings, a.emails).Seed(ctx)
	if err != nil {
		return rep, err
	}
	zap.S().Infow("preset data seeded", "forms", rep.Forms, "settings", rep.Settings, "emails", rep.Emails)
	return rep, nil
}

/*──────────────────────────── serve ────────────────────────────────────────*/

func runServe(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	if cfg.Geo.CityDB != "" {
		if err := requestinfo.InitGeo(cfg.Geo.CityDB); err != nil {
			zap.S().Warnw("geoip disabled", "path", cfg.Geo.CityDB, "err", err)
		} else {
			defer requestinfo.CloseGeo()
		}
	}

	if _, err := a.seed(ctx); err != nil {
		return err
	}

	svc := settings.NewService(a.settings, a.forms, 0)
	if err := svc.Reload(ctx); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	crypter := settings.NewCrypter(cfg.Session.Secret)

	mail := message.NewService(a.emails, svc, message.SMTPSender{}, message.Options{
		Env:           cfg.Env,
		ClientBaseURL: cfg.HTTP.ClientBase,
		SMTP: message.SMTPConfig{
			Host: cfg.Email.Host,
			Port: cfg.Email.Port,
			User: cfg.Email.User,
			Pass: cfg.Email.Pass,
			From: cfg.Email.From,
		},
		Crypter: crypter,
		Workers: cfg.Email.Workers,
	})
	mail.Start(ctx)
	defer mail.Close()

	store, err := sessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	sessions := session.NewManager(store, session.NewCookieCodec(cfg.Session.Secret),
		cfg.Session.CookieName, cfg.Session.MaxAge, cfg.HTTP.ForceHTTPS)

	deps := component.Deps{
		Env:           cfg.Env,
		ClientBaseURL: cfg.HTTP.ClientBase,
		DB:            a.db.DB,
		Engine:        form.NewEngine(a.forms, svc),
		Forms:         a.forms,
		Settings:      svc,
		SettingsStore: a.settings,
		Crypter:       crypter,
		Users:         a.users,
		Exposure:      exposure.NewResolver(a.forms, svc),
		Mail:          mail,
		Tokens:        auth.Tokens{},
		Now:           time.Now,
	}

	r, err := router(cfg, sessions, deps)
	if err != nil {
		return err
	}
	zap.S().Infow("beacon listening", "addr", cfg.HTTP.ListenAddr, "api", cfg.HTTP.APIPath, "env", cfg.Env)
	return server.Run(ctx, server.New(cfg.HTTP.ListenAddr, r))
}

func sessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.Redis.Addr == "" {
		zap.S().Warnw("redis not configured, sessions kept in memory")
		return session.NewMemoryStore(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}
	return session.NewRedisStore(rdb), nil
}

// router builds the request pipeline and mounts every component under the
// API path.
func router(cfg *config.Config, sessions *session.Manager, deps component.Deps) (http.Handler, error) {
	access := cfg.HTTP.APIPath + "/login" + login.AccessPath
	exempt := func(r *http.Request) bool { return r.URL.Path == access }

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		logger.RequestLog,
		chimw.Recoverer,
		middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS),
		middleware.Security(cfg.HTTP.ForceHTTPS),
		middleware.CORS(cfg.HTTP.ClientOrigin, form.CSRFHeader),
		requestinfo.Enrich,
		sessions.Middleware,
		form.ParseBody,
		form.CSRF(cfg.Session.CSRFMaxAge, exempt),
	)

	r.Handle("/metrics", promhttp.Handler())

	var mountErr error
	r.Route(cfg.HTTP.APIPath, func(api chi.Router) {
		mountErr = component.Mount(api, deps)
	})
	if mountErr != nil {
		return nil, fmt.Errorf("components: %w", mountErr)
	}
	return r, nil
}
