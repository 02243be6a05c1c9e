// internal/config/model.go
//
// Typed configuration model for Gazette.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/gazette.yaml`                       – primary static file,
//   • `GAZETTE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

// Environment names recognised by BackendBaseURL.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Backend section
//

// Backend describes the upstream API every proxy route talks to.
//
// The proxy tier never picks a host on its own; it always asks
// Config.BackendBaseURL so that all routes and the role gate agree.
type Backend struct {
	DevURL  string        `koanf:"dev_url"  validate:"required,url"`
	ProdURL string        `koanf:"prod_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout"  validate:"gte=0"`
	APIKey  string        `koanf:"api_key"` // usually "vault:secret/gazette#backend_api_key"
}

//
// Logging section
//

// Log controls the zap logger.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// GeoIP section
//

// GeoIP points at an optional GeoLite2 database.  Empty disables lookups.
type GeoIP struct {
	Path string `koanf:"path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // GAZETTE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load().
type Config struct {
	Env     string  `koanf:"env" validate:"required"`
	HTTP    HTTP    `koanf:"http"`
	Backend Backend `koanf:"backend"`
	Log     Log     `koanf:"log"`
	GeoIP   GeoIP   `koanf:"geoip"`
	Paths   Paths   `koanf:"-"`
}

// BackendBaseURL is the single backend resolution function.  Development
// targets the local backend; every other environment targets production.
func (c *Config) BackendBaseURL() string {
	if c.Env == EnvDevelopment {
		return c.Backend.DevURL
	}
	return c.Backend.ProdURL
}

// IsProduction reports whether cookies must be forced cross-site.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }
