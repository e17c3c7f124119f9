// internal/vault/vault.go
//
// Secret references in Beacon's configuration.
//
// Context
//   Deployments keep the MySQL DSN, the session secret, and the SMTP
//   password out of conf/global.yaml by writing a reference instead:
//
//     database:
//       dsn: "vault:secret/beacon/mysql#dsn"
//
//   ParseRef recognises such values and the config loader asks a Secrets
//   handle for each one.  Secrets talks to a HashiCorp Vault KV-v2 engine
//   and keeps its token alive for as long as the process runs.
//
// Workflow
//   1.  ParseRef("vault:secret/beacon/mysql#dsn") → Ref{secret, beacon/mysql, dsn}.
//   2.  Connect(ctx) once, on the first reference.
//   3.  Secret(ctx, ref) per reference; values repeat from memory for CacheTTL.
//
// Notes
//   •  VAULT_ADDR and VAULT_TOKEN come from the environment (the SDK also
//      reads ~/.vault-token).
//   •  A token that cannot be renewed is left alone; Beacon reads its secrets
//      at boot and only needs the token again on a config reload.
//
//------------------------------------------------------------------------------

package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// Prefix marks a config string as a secret reference.
const Prefix = "vault:"

// CacheTTL is how long a fetched value is reused.
const CacheTTL = 5 * time.Minute

// ErrBadRef is returned by ParseRef for a malformed reference.
var ErrBadRef = errors.New("vault reference must be vault:<mount>/<path>#<key>")

/*──────────────────────────── references ───────────────────────────────────*/

// Ref points at one key of one KV-v2 secret.
type Ref struct {
	Mount string // "secret"
	Path  string // "beacon/mysql"
	Key   string // "dsn"
}

func (r Ref) String() string { return Prefix + r.Mount + "/" + r.Path + "#" + r.Key }

// ParseRef reports whether s is a secret reference and, if so, decodes it.
// Strings without the prefix are plain values: ok is false and err nil.
func ParseRef(s string) (ref Ref, ok bool, err error) {
	rest, found := strings.CutPrefix(s, Prefix)
	if !found {
		return Ref{}, false, nil
	}
	loc, key, _ := strings.Cut(rest, "#")
	mount, path, _ := strings.Cut(loc, "/")
	if mount == "" || path == "" || key == "" {
		return Ref{}, true, fmt.Errorf("%q: %w", s, ErrBadRef)
	}
	return Ref{Mount: mount, Path: path, Key: key}, true, nil
}

/*──────────────────────────── client ───────────────────────────────────────*/

// Secrets reads KV-v2 values.  Safe for concurrent use.
type Secrets struct {
	api *vaultapi.Client

	mu    sync.Mutex
	cache map[Ref]entry
	now   func() time.Time
}

type entry struct {
	val     string
	expires time.Time
}

// Connect builds a client from the VAULT_* environment and starts token
// upkeep, which stops with ctx.
func Connect(ctx context.Context) (*Secrets, error) {
	cfg := vaultapi.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault: environment: %w", err)
	}
	api, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault: client: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		api.SetToken(tok)
	}
	zap.S().Debugw("vault connected", "addr", cfg.Address)

	s := newSecrets(api)
	go s.keepToken(ctx)
	return s, nil
}

func newSecrets(api *vaultapi.Client) *Secrets {
	return &Secrets{api: api, cache: make(map[Ref]entry), now: time.Now}
}

// Secret returns the string stored under ref.
func (s *Secrets) Secret(ctx context.Context, ref Ref) (string, error) {
	s.mu.Lock()
	e, hit := s.cache[ref]
	s.mu.Unlock()
	if hit && s.now().Before(e.expires) {
		return e.val, nil
	}
	if s.api == nil {
		return "", fmt.Errorf("%s: vault not connected", ref)
	}

	kv, err := s.api.KVv2(ref.Mount).Get(ctx, ref.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ref, err)
	}
	if kv == nil || kv.Data == nil {
		return "", fmt.Errorf("%s: secret not found", ref)
	}
	val, ok := kv.Data[ref.Key].(string)
	if !ok {
		return "", fmt.Errorf("%s: key missing or not a string", ref)
	}

	s.mu.Lock()
	s.cache[ref] = entry{val: val, expires: s.now().Add(CacheTTL)}
	s.mu.Unlock()
	return val, nil
}

/*──────────────────────────── token upkeep ─────────────────────────────────*/

// keepToken renews the client token with a lifetime watcher until ctx ends.
// A watcher that gives up is replaced after a pause.
func (s *Secrets) keepToken(ctx context.Context) {
	for ctx.Err() == nil {
		tok, err := s.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			zap.S().Warnw("vault token renew failed", "err", err)
			sleep(ctx, 30*time.Second)
			continue
		}
		if tok == nil || tok.Auth == nil || !tok.Auth.Renewable {
			zap.S().Debugw("vault token not renewable, upkeep stopped")
			return
		}
		s.watch(ctx, tok)
		sleep(ctx, 15*time.Second)
	}
}

// watch runs one lifetime watcher until it finishes or ctx ends.
func (s *Secrets) watch(ctx context.Context, tok *vaultapi.Secret) {
	w, err := s.api.NewLifetimeWatcher(&vaultapi.LifetimeWatcherInput{Secret: tok})
	if err != nil {
		zap.S().Warnw("vault watcher failed", "err", err)
		return
	}
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				zap.S().Warnw("vault token watcher ended", "err", err)
			}
			return
		case out := <-w.RenewCh():
			if out != nil && out.Secret != nil && out.Secret.Auth != nil {
				zap.S().Debugw("vault token renewed", "ttl_s", out.Secret.Auth.LeaseDuration)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
