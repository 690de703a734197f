// internal/config/model.go
//
// Typed configuration model for the CRM toolkit.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                       – dotenv values,
//   • `conf/crm.yaml`                       – primary static file,
//   • `CRM_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through a SecretGetter *before* unmarshalling, so the model never stores
// Vault references, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations are written as Go duration strings (“800ms”, “5s”).
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// API section
//

// API points the client side at the CRM backend.
type API struct {
	BaseURL         string        `koanf:"base_url"          validate:"required,url"`
	Timeout         time.Duration `koanf:"timeout"           validate:"gte=0"`
	ChecksPerSecond float64       `koanf:"checks_per_second" validate:"gte=0"`
	Burst           int           `koanf:"burst"             validate:"gte=0"`
}

//
// Check section
//

// Check tunes the uniqueness checker.
type Check struct {
	Debounce time.Duration `koanf:"debounce" validate:"gte=0"`
	Timeout  time.Duration `koanf:"timeout"  validate:"gte=0"`
}

//
// HTTP section
//

// HTTP holds reference-backend server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host, port,
// or flags without touching Vault.  The *secret* (`Password`) is typically a
// `vault:` reference injected at runtime.  Both are optional for the
// client-only commands; `crm serve` requires the DSN.
type Database struct {
	DSN      string `koanf:"dsn"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle" validate:"gte=0"`
}

//
// Log section
//

// Log selects log sinks.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

//
// Forms section
//

// Forms points at extra YAML form definitions.
type Forms struct {
	Dir string `koanf:"dir"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime.  Root is CRM_ROOT or the discovered parent
// holding conf/crm.yaml.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	API      API      `koanf:"api"`
	Check    Check    `koanf:"check"`
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Log      Log      `koanf:"log"`
	Forms    Forms    `koanf:"forms"`
	Paths    Paths    `koanf:"-"`
}
