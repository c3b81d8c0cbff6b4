package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresDBURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DB_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/events")
	t.Setenv("API_KEYS", "")
	t.Setenv("ADDR", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("CORS_ORIGIN", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKeys["tenant-key-123"] != "tenant1" {
		t.Errorf("dev key fallback missing: %v", cfg.APIKeys)
	}
	if cfg.Addr != ":8080" || cfg.NATSSubject != "events.ingested" || cfg.CORSOrigin != "*" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.NATSURL != "" || cfg.LogLevel != slog.LevelInfo {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadAPIKeys(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/events")
	t.Setenv("LOG_LEVEL", "debug")

	tests := []struct {
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{raw: "t1:k1, t2:k2,", want: map[string]string{"k1": "t1", "k2": "t2"}},
		{raw: "t1:k:with:colons", want: map[string]string{"k:with:colons": "t1"}},
		{raw: "missing-colon", wantErr: true},
		{raw: ":k1", wantErr: true},
		{raw: "t1:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("API_KEYS", tt.raw)
			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(cfg.APIKeys) != len(tt.want) {
				t.Fatalf("APIKeys = %v, want %v", cfg.APIKeys, tt.want)
			}
			for k, v := range tt.want {
				if cfg.APIKeys[k] != v {
					t.Errorf("APIKeys[%q] = %q, want %q", k, cfg.APIKeys[k], v)
				}
			}
			if cfg.LogLevel != slog.LevelDebug {
				t.Errorf("LogLevel = %v", cfg.LogLevel)
			}
		})
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/events")
	t.Setenv("LOG_LEVEL", "chatty")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad LOG_LEVEL")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadClientFile(t *testing.T) {
	path := writeFile(t, `
endpoint = "https://collector.example.com/analytics"
api_key = "secret"
debug = true
batch_size = 25
flush_interval = "2s"
gzip = true

[default_tags]
env = "staging"
`)
	cf, err := LoadClientFile(path)
	if err != nil {
		t.Fatalf("LoadClientFile: %v", err)
	}
	if cf.Endpoint != "https://collector.example.com/analytics" || cf.APIKey != "secret" {
		t.Errorf("unexpected %+v", cf)
	}
	if cf.Debug == nil || !*cf.Debug || cf.BatchSize == nil || *cf.BatchSize != 25 {
		t.Errorf("unexpected debug/batch %+v", cf)
	}
	if cf.Disabled != nil || cf.MaxPending != nil {
		t.Errorf("unset keys should stay nil: %+v", cf)
	}
	d, err := cf.Interval()
	if err != nil || d == nil || *d != 2*time.Second {
		t.Errorf("Interval = %v, %v", d, err)
	}
	if cf.DefaultTags["env"] != "staging" {
		t.Errorf("DefaultTags = %v", cf.DefaultTags)
	}
}

func TestLoadClientFileMissingIsEmpty(t *testing.T) {
	cf, err := LoadClientFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadClientFile: %v", err)
	}
	if cf.Endpoint != "" || cf.Debug != nil {
		t.Fatalf("expected empty config, got %+v", cf)
	}
}

func TestLoadClientFileRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":    `endpont = "typo"`,
		"bad interval":   `flush_interval = "soon"`,
		"negative":       `flush_interval = "-1s"`,
		"invalid syntax": `endpoint = `,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadClientFile(writeFile(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
