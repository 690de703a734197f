// internal/config/loader_test.go
//
// Unit-tests for layered config loading.
//
// Run: go test ./internal/config -v

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeSecrets map[string]string

func (f fakeSecrets) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	v, ok := f[path+"#"+key]
	if !ok {
		return "", errors.New("no such secret")
	}
	return v, nil
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", "crm.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestLoad_YAMLEnvAndDefaults(t *testing.T) {
	root := writeYAML(t, `
api:
  base_url: http://crm.internal:8080
check:
  debounce: 300ms
http:
  listen_addr: ":9090"
log:
  dir: logs
`)
	t.Setenv("CRM_HTTP__LISTEN_ADDR", "127.0.0.1:7070")

	cfg, err := Load(context.Background(), Options{Root: root})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.ListenAddr != "127.0.0.1:7070" {
		t.Fatalf("env overlay ignored: %q", cfg.HTTP.ListenAddr)
	}
	if cfg.Check.Debounce != 300*time.Millisecond || cfg.Check.Timeout != DefaultCheckTimeout {
		t.Fatalf("check = %+v", cfg.Check)
	}
	if cfg.API.Burst != DefaultBurst || cfg.Log.Level != DefaultLevel {
		t.Fatalf("defaults not applied: %+v %+v", cfg.API, cfg.Log)
	}
	if cfg.Log.Dir != filepath.Join(root, "logs") {
		t.Fatalf("log dir = %q", cfg.Log.Dir)
	}
	if Get() != cfg {
		t.Fatal("Get does not return the cached config")
	}
}

func TestLoad_ValidationNamesKey(t *testing.T) {
	root := writeYAML(t, "api:\n  base_url: not a url\n")
	_, err := Load(context.Background(), Options{Root: root})
	if err == nil || !strings.Contains(err.Error(), "api.base_url") {
		t.Fatalf("err = %v, want api.base_url violation", err)
	}
}

func TestLoad_ResolvesVaultReferences(t *testing.T) {
	root := writeYAML(t, `
api:
  base_url: http://localhost:8080
database:
  dsn: crm@tcp(db:3306)/crm
  password: vault:secret/crm/db#password
`)
	secrets := fakeSecrets{"secret/crm/db#password": "hunter2"}
	cfg, err := Load(context.Background(), Options{Root: root, Secrets: secrets})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Password != "hunter2" {
		t.Fatalf("password = %q", cfg.Database.Password)
	}

	if _, err := Load(context.Background(), Options{Root: root}); err == nil {
		t.Fatal("vault reference without secret store accepted")
	}
}

func TestParseSecretRef(t *testing.T) {
	p, k, err := ParseSecretRef("vault:secret/crm/db#password")
	if err != nil || p != "secret/crm/db" || k != "password" {
		t.Fatalf("got %q %q %v", p, k, err)
	}
	for _, bad := range []string{"vault:secret/crm/db", "vault:#k", "vault:p#"} {
		if _, _, err := ParseSecretRef(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}
