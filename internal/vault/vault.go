// internal/vault/vault.go
//
// Vault client wrapper for secret references in resolver configuration.
//
// Context
// -------
//   - Cluster bearer tokens and the cluster-registry DSN password may be
//     written as references instead of literals:
//
//     vault:<mount>/<path>#<key>     e.g. vault:secret/k8s/prod#token
//
//   - Client wraps the HashiCorp Vault SDK with KV-v2 reads, a per-key TTL
//     cache, and background token renewal.
//   - Values that are not references pass through Resolve unchanged, so
//     callers never branch on "is this a secret".
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx)                      // during boot.
//  2. tok, err := cli.Resolve(ctx, cluster.Token)     // anywhere in the app.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// RefPrefix marks a value as a Vault reference.
const RefPrefix = "vault:"

// DefaultTTL is how long a resolved reference is cached.
const DefaultTTL = 5 * time.Minute

// ErrBadRef is returned for references without a path or key.
var ErrBadRef = errors.New("vault: malformed secret reference")

//
// SECTION 1.  References
//

// IsRef reports whether s is a vault reference.
func IsRef(s string) bool { return strings.HasPrefix(s, RefPrefix) }

// ParseRef splits `vault:<path>#<key>`.
func ParseRef(s string) (path, key string, err error) {
	if !IsRef(s) {
		return "", "", fmt.Errorf("%w: %q lacks %q prefix", ErrBadRef, s, RefPrefix)
	}
	path, key, ok := strings.Cut(strings.TrimPrefix(s, RefPrefix), "#")
	if !ok || path == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadRef, s)
	}
	return path, key, nil
}

// Getter is the read surface resolvers depend on.  *Client implements it.
type Getter interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// Resolve returns s unchanged unless it is a reference, in which case the
// secret is fetched through g.
func Resolve(ctx context.Context, g Getter, s string) (string, error) {
	if !IsRef(s) {
		return s, nil
	}
	path, key, err := ParseRef(s)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "", fmt.Errorf("vault: reference %q but no vault client configured", s)
	}
	return g.GetKV(ctx, path, key, DefaultTTL)
}

//
// SECTION 2.  Client
//

// Client is safe for concurrent use.  Create once at startup.  Zero value is
// invalid.
type Client struct {
	api *vault.Client

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from VAULT_ADDR / VAULT_TOKEN and starts a
// background token-renewal loop bound to ctx.
func New(ctx context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := &Client{api: apiCli, cache: make(map[string]cached)}
	go c.renewLoop(ctx)

	zap.S().Infow("vault client online", "addr", cfg.Address)
	return c, nil
}

// Resolve is the method form of the package-level Resolve.
func (c *Client) Resolve(ctx context.Context, s string) (string, error) {
	return Resolve(ctx, c, s)
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", fmt.Errorf("%w: empty path or key", ErrBadRef)
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

//
// SECTION 3.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	log := zap.S().With("component", "vault")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			log.Warnw("token renew self failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			log.Infow("token is not renewable, sleeping", "for", time.Hour)
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
			Grace:  15 * time.Second,
		})
		if err != nil {
			log.Warnw("lifetime watcher init failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		go watcher.Start()
		c.watch(ctx, watcher)
		if ctx.Err() != nil {
			return
		}
		backoff(ctx, 15*time.Second)
	}
}

// watch blocks until the watcher stops or ctx ends.
func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher) {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				zap.S().Warnw("vault token renewal stopped", "err", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				zap.S().Debugw("vault token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 4.  Helpers
//

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
