// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. Optional `conf/crm.yaml`.
  3. Environment variables prefixed `CRM_`, where `__` maps to “.”
     (e.g., `CRM_API__BASE_URL → api.base_url`).

After merging, string values of the form `vault:<mount/path>#<key>` are
replaced by the secret they name.  The tree is then unmarshalled into typed
structs, completed with defaults, validated, and cached in an
`atomic.Pointer` for lock-free reads.  `Reload()` calls `Load()` again with
the previous options and swaps the pointer.

Instrumentation
---------------
  • DEBUG spans – root discovery, YAML read, secret resolution.
  • ERROR spans – YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  – final “config loaded” with key highlights.
  • Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/crm.yaml`, so the
    CLI works from any sub-directory of a checkout.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"errors"
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
)

// Defaults applied to zero values after unmarshal.
const (
	DefaultListenAddr      = ":8080"
	DefaultAPITimeout      = 10 * time.Second
	DefaultChecksPerSecond = 5
	DefaultBurst           = 5
	DefaultDebounce        = 800 * time.Millisecond
	DefaultCheckTimeout    = 5 * time.Second
	DefaultLevel           = "info"

	vaultPrefix = "vault:"
	secretTTL   = 10 * time.Minute
)

// SecretGetter reads one key of a KV-v2 secret.  *vault.Client satisfies it.
type SecretGetter interface {
	GetKV(ctx context.Context, path, key string, ttl time.Duration) (string, error)
}

// Options controls one Load.
type Options struct {
	Root    string       // "" discovers via CRM_ROOT or conf/crm.yaml
	File    string       // "" means <root>/conf/crm.yaml
	Secrets SecretGetter // nil makes any vault: value an error
}

var (
	current  atomic.Pointer[Config]
	lastOpts atomic.Pointer[Options]
)

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves CRM_ROOT or climbs directories until conf/crm.yaml is
// found.  Falls back to the working directory.
func rootDir() string {
	if r := os.Getenv("CRM_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "crm.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves secrets, validates, and
// caches Config.
func Load(ctx context.Context, opts Options) (*Config, error) {
	root := opts.Root
	if root == "" {
		root = rootDir()
	}
	zap.S().Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := opts.File
	if yamlPath == "" {
		yamlPath = filepath.Join(root, "conf", "crm.yaml")
	}
	if _, err := os.Stat(yamlPath); err == nil {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, fmt.Errorf("config: %s: %w", yamlPath, err)
		}
		zap.S().Debugw("config yaml loaded", "file", yamlPath)
	} else if opts.File != "" {
		return nil, fmt.Errorf("config: %w", err)
	}

	// Env overrides: CRM_API__BASE_URL → api.base_url
	if err := k.Load(env.Provider("CRM_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "CRM_")
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, opts.Secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	applyDefaults(&cfg)
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	o := opts
	lastOpts.Store(&o)
	zap.S().Infow("config loaded",
		"api", cfg.API.BaseURL,
		"listen_addr", cfg.HTTP.ListenAddr,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// Get returns the last loaded Config, or nil.
func Get() *Config { return current.Load() }

// Reload repeats the last Load.
func Reload(ctx context.Context) error {
	opts := Options{}
	if o := lastOpts.Load(); o != nil {
		opts = *o
	}
	_, err := Load(ctx, opts)
	return err
}

func applyDefaults(c *Config) {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = DefaultListenAddr
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.ChecksPerSecond == 0 {
		c.API.ChecksPerSecond = DefaultChecksPerSecond
	}
	if c.API.Burst == 0 {
		c.API.Burst = DefaultBurst
	}
	if c.Check.Debounce == 0 {
		c.Check.Debounce = DefaultDebounce
	}
	if c.Check.Timeout == 0 {
		c.Check.Timeout = DefaultCheckTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLevel
	}
	if c.Log.Dir != "" && !filepath.IsAbs(c.Log.Dir) {
		c.Log.Dir = filepath.Join(c.Paths.Root, c.Log.Dir)
	}
	if c.Forms.Dir != "" && !filepath.IsAbs(c.Forms.Dir) {
		c.Forms.Dir = filepath.Join(c.Paths.Root, c.Forms.Dir)
	}
}

// resolveSecrets swaps every `vault:path#key` string for its secret.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, sg SecretGetter) error {
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, vaultPrefix) {
			continue
		}
		if sg == nil {
			return fmt.Errorf("config: %s references a vault secret but no secret store is configured", key)
		}
		path, field, err := ParseSecretRef(s)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		secret, err := sg.GetKV(ctx, path, field, secretTTL)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		if err := k.Set(key, secret); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		zap.S().Debugw("config secret resolved", "key", key, "path", path)
	}
	return nil
}

// ParseSecretRef splits `vault:mount/path#key`.
func ParseSecretRef(ref string) (path, key string, err error) {
	body := strings.TrimPrefix(ref, vaultPrefix)
	path, key, ok := strings.Cut(body, "#")
	if !ok || path == "" || key == "" {
		return "", "", errors.New("secret reference must look like vault:mount/path#key")
	}
	return path, key, nil
}
