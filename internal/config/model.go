// internal/config/model.go
//
// Typed configuration model for Beacon.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                          – dotenv values,
//   • `conf/global.yaml`                       – primary static file,
//   • `BEACON_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

// Runtime environments.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string `koanf:"listen_addr"   validate:"required,hostname_port"`
	ForceHTTPS   bool   `koanf:"force_https"`
	ClientOrigin string `koanf:"client_origin" validate:"omitempty,url"`
	ClientBase   string `koanf:"client_base"   validate:"omitempty,url"` // links in email
	APIPath      string `koanf:"api_path"      validate:"required,startswith=/"`
}

//
// Database section
//

// Database holds the DSN.  Keep the password out of YAML with a `vault:`
// reference or a BEACON_DATABASE__DSN override.
type Database struct {
	DSN string `koanf:"dsn" validate:"required"`
}

//
// Redis section
//

// Redis backs the session store.  An empty Addr selects the in-memory
// store, which only suits a single process.
type Redis struct {
	Addr     string `koanf:"addr"     validate:"omitempty,hostname_port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"       validate:"gte=0"`
}

//
// Session section
//

// Session configures cookies and CSRF.  Secret also keys the encryption of
// password-type admin settings.
type Session struct {
	Secret     string        `koanf:"secret"       validate:"required,min=16"`
	MaxAge     time.Duration `koanf:"max_age"      validate:"gt=0"`
	CookieName string        `koanf:"cookie_name"`
	CSRFMaxAge time.Duration `koanf:"csrf_max_age" validate:"gte=0"`
}

//
// Email section
//

// Email holds SMTP overrides.  Empty values fall back to admin settings.
type Email struct {
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"gte=0,lte=65535"`
	User    string `koanf:"user"`
	Pass    string `koanf:"pass"`
	From    string `koanf:"from" validate:"omitempty,email"`
	Workers int    `koanf:"workers" validate:"gte=0"`
}

//
// Geo section
//

// Geo points at the optional MaxMind database.
type Geo struct {
	CityDB string `koanf:"city_db"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or BEACON_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // BEACON_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	Env      string   `koanf:"env"      validate:"oneof=production development test"`
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Redis    Redis    `koanf:"redis"`
	Session  Session  `koanf:"session"`
	Email    Email    `koanf:"email"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}

// IsTest reports whether the test environment is active.
func (c *Config) IsTest() bool { return c.Env == EnvTest }
