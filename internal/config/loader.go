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
  2. `conf/gazette.yaml`.
  3. Environment variables prefixed `GAZETTE_`, where `__` maps to "."
     (e.g., `GAZETTE_BACKEND__PROD_URL → backend.prod_url`).

After merging, `vault:` references are resolved, the tree is unmarshalled
into strongly-typed structs, defaults are applied, the result is validated,
and enriched with the runtime root path.  The caller owns the result; the
handler tree is built from it once at start-up.

Instrumentation
---------------
  • DEBUG spans: root discovery, YAML read.
  • ERROR spans: YAML parse, env overlay, vault, unmarshal, validation.
  • INFO  span:  final "config loaded" with key highlights (never secrets).
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/vault"
)

const (
	envPrefix = "GAZETTE_"
	yamlName  = "gazette.yaml"
	secretTTL = 5 * time.Minute
)

// secretResolver is the slice of *vault.Client the loader needs.
type secretResolver interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// newResolver is swapped in tests.
var newResolver = func(ctx context.Context) (secretResolver, error) {
	return vault.New(ctx)
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves GAZETTE_ROOT or climbs directories until
// conf/gazette.yaml is found.
func rootDir() string {
	if r := os.Getenv("GAZETTE_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", yamlName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
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

// Load reads .env, YAML, env overrides, resolves secrets, validates, and
// caches Config.
func Load() (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", yamlName)
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, fmt.Errorf("load %s: %w", yamlPath, err)
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, envPrefix), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, fmt.Errorf("env overlay: %w", err)
	}

	if err := resolveSecrets(context.Background(), k); err != nil {
		zap.S().Errorw("config vault resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, fmt.Errorf("validate: %w", err)
	}

	zap.S().Infow("config loaded",
		"env", cfg.Env,
		"listen_addr", cfg.HTTP.ListenAddr,
		"backend", cfg.BackendBaseURL(),
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces every `vault:` string in k with its secret value.
// The Vault client is only built when at least one reference exists.
func resolveSecrets(ctx context.Context, k *koanf.Koanf) error {
	var res secretResolver
	for _, key := range k.Keys() {
		raw, ok := k.Get(key).(string)
		if !ok || !vault.IsRef(raw) {
			continue
		}
		ref, err := vault.ParseRef(raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if res == nil {
			if res, err = newResolver(ctx); err != nil {
				return fmt.Errorf("vault client: %w", err)
			}
		}
		val, err := res.GetKV(ctx, ref.Path, ref.Key, secretTTL)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}
