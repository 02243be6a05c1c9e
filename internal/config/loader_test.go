package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
env: development
http:
  listen_addr: ":9090"
backend:
  dev_url: "http://localhost:5000"
  prod_url: "https://api.gazette.example"
  timeout: 7s
  api_key: "vault:secret/gazette#backend_api_key"
`

type fakeResolver struct {
	calls int
	err   error
}

func (f *fakeResolver) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "resolved:" + path + "#" + key, nil
}

func writeRoot(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", yamlName), []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("GAZETTE_ROOT", root)
	return root
}

func stubResolver(t *testing.T, r *fakeResolver) {
	t.Helper()
	orig := newResolver
	newResolver = func(context.Context) (secretResolver, error) { return r, nil }
	t.Cleanup(func() { newResolver = orig })
}

func TestLoad_YAMLAndVault(t *testing.T) {
	root := writeRoot(t, sampleYAML)
	res := &fakeResolver{}
	stubResolver(t, res)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Root != root {
		t.Errorf("root = %q, want %q", cfg.Paths.Root, root)
	}
	if cfg.HTTP.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.HTTP.ListenAddr)
	}
	if cfg.Backend.Timeout != 7*time.Second {
		t.Errorf("timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.APIKey != "resolved:secret/gazette#backend_api_key" {
		t.Errorf("api_key = %q", cfg.Backend.APIKey)
	}
	if res.calls != 1 {
		t.Errorf("resolver calls = %d, want 1", res.calls)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q", cfg.Log.Level)
	}
}

func TestLoad_EnvOverridesAndBackendResolution(t *testing.T) {
	writeRoot(t, sampleYAML)
	stubResolver(t, &fakeResolver{})
	t.Setenv("GAZETTE_ENV", "production")
	t.Setenv("GAZETTE_BACKEND__PROD_URL", "https://api.override.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("env = %q, want production", cfg.Env)
	}
	if got := cfg.BackendBaseURL(); got != "https://api.override.example" {
		t.Fatalf("BackendBaseURL = %q", got)
	}
}

func TestBackendBaseURL_Development(t *testing.T) {
	cfg := &Config{Env: EnvDevelopment, Backend: Backend{DevURL: "http://localhost:5000", ProdURL: "https://x"}}
	if got := cfg.BackendBaseURL(); got != "http://localhost:5000" {
		t.Fatalf("BackendBaseURL = %q", got)
	}
	cfg.Env = "staging"
	if got := cfg.BackendBaseURL(); got != "https://x" {
		t.Fatalf("non-development BackendBaseURL = %q", got)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	writeRoot(t, "env: development\nbackend:\n  dev_url: \"not a url\"\n")
	stubResolver(t, &fakeResolver{})

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_VaultFailure(t *testing.T) {
	writeRoot(t, sampleYAML)
	stubResolver(t, &fakeResolver{err: errors.New("sealed")})

	if _, err := Load(); err == nil {
		t.Fatal("expected vault error")
	}
}
