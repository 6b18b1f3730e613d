package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithTokenFromEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q, want env fallback", cfg.Telegram.Token)
	}
	if cfg.Broadcast.Time != "10:30" || cfg.Broadcast.Timezone != "Europe/Berlin" {
		t.Fatalf("broadcast defaults = %+v", cfg.Broadcast)
	}
	h, m := cfg.BroadcastTime()
	if h != 10 || m != 30 {
		t.Fatalf("BroadcastTime = %d:%d", h, m)
	}
}

func TestLoadMissingTokenFails(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	if !strings.Contains(err.Error(), "token") {
		t.Fatalf("error = %v, want token complaint", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	path := writeConfig(t, `
telegram:
  token: "456:def"
  poll_timeout: 20s
storage:
  path: /var/lib/mensabot/subs.sqlite
broadcast:
  time: "09:15"
  timezone: UTC
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "456:def" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.PollTimeout.Std() != 20*time.Second {
		t.Fatalf("poll_timeout = %v", cfg.Telegram.PollTimeout.Std())
	}
	h, m := cfg.BroadcastTime()
	if h != 9 || m != 15 {
		t.Fatalf("BroadcastTime = %d:%d", h, m)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("Location = %v", cfg.Location())
	}
	// Untouched sections keep their defaults.
	if cfg.Menu.ConvertBinary != "convert" {
		t.Fatalf("convert_binary default lost: %q", cfg.Menu.ConvertBinary)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad time", "telegram:\n  token: t\nbroadcast:\n  time: \"25:99\"\n"},
		{"bad timezone", "telegram:\n  token: t\nbroadcast:\n  timezone: Mars/Olympus\n"},
		{"unknown field", "telegram:\n  token: t\n  typo_field: 1\n"},
		{"bad duration", "telegram:\n  token: t\n  poll_timeout: soon\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("Load accepted %s", tt.name)
			}
		})
	}
}
