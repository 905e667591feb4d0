package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("missing file must yield a zero config, got %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
container: /srv/kits/acoustic.osmp
mountpoint: /mnt/kit
allow_other: false
server_address: 0.0.0.0:9090
stream_mode: random
log_level: debug
log_format: json
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Container != "/srv/kits/acoustic.osmp" || cfg.Mountpoint != "/mnt/kit" {
		t.Fatalf("paths: %+v", cfg)
	}
	if cfg.AllowOther == nil || *cfg.AllowOther {
		t.Fatalf("allow_other must be set and false, got %v", cfg.AllowOther)
	}
	if cfg.ServerAddress != "0.0.0.0:9090" || cfg.StreamMode != "random" {
		t.Fatalf("server/stream: %+v", cfg)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("logging: %+v", cfg)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"syntax":      "container: [unterminated",
		"stream mode": "stream_mode: backwards",
		"log level":   "log_level: shouty",
		"log format":  "log_format: xml",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadFile(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error for %q", body)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Parallel()
	p := Path()
	if p != "" && filepath.Base(p) != "config.yaml" {
		t.Fatalf("unexpected config path %q", p)
	}
}
