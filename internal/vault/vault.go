// internal/vault/vault.go
//
// Vault client wrapper for CRM secrets.
//
// Context
// -------
//   - Wraps the HashiCorp Vault Go SDK for the one thing the toolkit needs:
//     reading single keys of KV-v2 secrets named by `vault:` references in
//     the configuration (typically the database password).
//   - Adds background token renewal and per-key caching.
//   - Lazy defers connecting until the first reference is resolved, so
//     commands whose configuration holds no reference never need VAULT_ADDR.
//
// Public workflow
// ---------------
//  1. sg := vault.NewLazy(ctx, log.Infof)            // during boot.
//  2. cfg, err := config.Load(ctx, config.Options{Secrets: sg})
//
// Build tags: none.
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
)

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	kv    func(ctx context.Context, mount, rel string) (map[string]any, error)
	logFn func(string, ...any)

	cacheMu sync.RWMutex
	cache   map[string]cached // path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from VAULT_ADDR / VAULT_TOKEN and starts a
// background token-renewal loop bound to ctx.
func New(ctx context.Context, logFn func(string, ...any)) (*Client, error) {
	if logFn == nil {
		logFn = func(string, ...any) {}
	}

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

	c := newClient(func(ctx context.Context, mount, rel string) (map[string]any, error) {
		sec, err := apiCli.KVv2(mount).Get(ctx, rel)
		if err != nil {
			return nil, err
		}
		return sec.Data, nil
	}, logFn)

	go renewLoop(ctx, apiCli, logFn)
	return c, nil
}

func newClient(kv func(context.Context, string, string) (map[string]any, error), logFn func(string, ...any)) *Client {
	return &Client{kv: kv, logFn: logFn, cache: make(map[string]cached)}
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("vault: secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key
	if ttl > 0 {
		c.cacheMu.RLock()
		cv, ok := c.cache[canonical]
		c.cacheMu.RUnlock()
		if ok && time.Now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	mount, rel := splitMount(secretPath)
	if rel == "" {
		return "", fmt.Errorf("vault: secret path %q lacks a mount prefix", secretPath)
	}
	data, err := c.kv(ctx, mount, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("vault: key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault: value at %s is not a string", canonical)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

//
// SECTION 2.  Lazy construction
//

// Lazy builds a Client on first use.  Construction errors are sticky.
type Lazy struct {
	ctx   context.Context
	logFn func(string, ...any)

	once sync.Once
	cli  *Client
	err  error
}

// NewLazy returns a Lazy bound to ctx.
func NewLazy(ctx context.Context, logFn func(string, ...any)) *Lazy {
	return &Lazy{ctx: ctx, logFn: logFn}
}

// GetKV implements config.SecretGetter.
func (l *Lazy) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	l.once.Do(func() { l.cli, l.err = New(l.ctx, l.logFn) })
	if l.err != nil {
		return "", l.err
	}
	return l.cli.GetKV(ctx, secretPath, key, ttl)
}

//
// SECTION 3.  Background token renewal
//

func renewLoop(ctx context.Context, api *vault.Client, logFn func(string, ...any)) {
	for ctx.Err() == nil {
		sec, err := api.Auth().Token().RenewSelf(0)
		if err != nil {
			logFn("vault: token renew self failed: %v", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			logFn("vault: token is not renewable, sleeping 1h")
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
			Grace:  15 * time.Second,
		})
		if err != nil {
			logFn("vault: watcher init error: %v", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		go watcher.Start()
		watch(ctx, watcher, logFn)
		watcher.Stop()
		backoff(ctx, 15*time.Second)
	}
}

// watch blocks until the watcher finishes or ctx ends.
func watch(ctx context.Context, w *vault.LifetimeWatcher, logFn func(string, ...any)) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				logFn("vault: token renewal stopped: %v", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				logFn("vault: token renewed, ttl=%ds", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 4.  Helpers
//

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(strings.Trim(p, "/"), "/")
	return
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
