// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `BEACON_`, where `__` maps to “.”
     (e.g., `BEACON_HTTP__LISTEN_ADDR → http.listen_addr`).

String values of the form `vault:<mount>/<path>#<key>` are then replaced
by the secret Vault returns.  The Vault client is created only when such a
value exists, so development setups need no Vault at all.

After merging, the tree is unmarshalled into strongly-typed structs,
defaulted, validated, enriched with the runtime root path, and cached in
an `atomic.Pointer` for lock-free reads.  `Reload()` simply calls `Load()`
again and swaps the pointer.

Instrumentation
---------------
  • DEBUG spans: root discovery, YAML read, env overlay, vault keys.
  • ERROR spans: YAML parse, env overlay, vault, unmarshal, validation.
  • INFO  span:  final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed (bootstrap console).

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/beacon/internal/vault"
)

const envPrefix = "BEACON_"

var current atomic.Pointer[Config]

// SecretSource resolves one secret reference.  *vault.Secrets satisfies it.
type SecretSource interface {
	Secret(ctx context.Context, ref vault.Ref) (string, error)
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves BEACON_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, and vault references from the
// discovered root, validates, and caches Config.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), rootDir(), nil)
}

// LoadFrom is Load with an explicit root and secret source.  A nil source
// connects to Vault on first use.
func LoadFrom(ctx context.Context, root string, secrets SecretSource) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: BEACON_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveVault(ctx, k, secrets); err != nil {
		zap.S().Errorw("config vault resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	applyDefaults(&cfg)
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"env", cfg.Env,
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"redis", cfg.Redis.Addr != "",
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveVault swaps every `vault:` string for its secret.
func resolveVault(ctx context.Context, k *koanf.Koanf, secrets SecretSource) error {
	for key, raw := range k.All() {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		ref, isRef, err := vault.ParseRef(s)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if !isRef {
			continue
		}
		if secrets == nil {
			cli, err := vault.Connect(ctx)
			if err != nil {
				return fmt.Errorf("config %s: %w", key, err)
			}
			secrets = cli
		}
		val, err := secrets.Secret(ctx, ref)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if err := k.Set(key, val); err != nil {
			return err
		}
		zap.S().Debugw("config value resolved from vault", "key", key, "mount", ref.Mount, "path", ref.Path)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Env == "" {
		c.Env = EnvProduction
	}
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":3001"
	}
	if c.HTTP.APIPath == "" {
		c.HTTP.APIPath = "/api"
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = time.Hour
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "beacon_sess"
	}
	if c.Session.CSRFMaxAge == 0 {
		c.Session.CSRFMaxAge = 10 * time.Second
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }
