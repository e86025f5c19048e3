package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
mailbox: soc@example.com
instances:
  - name: phishing
  - name: abuse
    folder: Inbox/Abuse
    max_fetch: 20
    mark_as_read: true
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RequestTimeout != 120*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.State.Driver != StateSQLite || cfg.State.Path != "data/mailpoll.db" {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.Publish.Driver != PublishNone || cfg.Publish.Subject != "mailpoll.incidents" {
		t.Errorf("Publish = %+v", cfg.Publish)
	}
	if cfg.Server.Addr != ":8080" || cfg.Log.Level != "info" {
		t.Errorf("Server = %+v Log = %+v", cfg.Server, cfg.Log)
	}

	first, second := cfg.Instances[0], cfg.Instances[1]
	if first.Folder != "Inbox" || first.MaxFetch != 50 || first.MarkAsRead {
		t.Errorf("first instance = %+v", first)
	}
	if second.Folder != "Inbox/Abuse" || second.MaxFetch != 20 || !second.MarkAsRead {
		t.Errorf("second instance = %+v", second)
	}
}

func TestLoadEnvAndFlagOverrides(t *testing.T) {
	path := writeConfig(t, `
mailbox: soc@example.com
request_timeout: 30s
instances:
  - name: phishing
`)
	t.Setenv("MAILPOLL_MAILBOX", "other@example.com")
	t.Setenv("MAILPOLL_STATE_DRIVER", "redis")

	fs := pflag.NewFlagSet("mailpoll", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse([]string{"--log-level", "debug"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mailbox != "other@example.com" || cfg.State.Driver != StateRedis {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no mailbox", "instances:\n  - name: a\n", "mailbox is required"},
		{"no instances", "mailbox: m@example.com\n", "at least one instance"},
		{"duplicate", "mailbox: m@example.com\ninstances:\n  - name: a\n  - name: a\n", "duplicate name"},
		{"public folder", "mailbox: m@example.com\ninstances:\n  - name: a\n    public_folder: true\n", "public folders"},
		{"publish url", "mailbox: m@example.com\npublish:\n  driver: nats\ninstances:\n  - name: a\n", "publish.url"},
		{"bad driver", "mailbox: m@example.com\nstate:\n  driver: etcd\ninstances:\n  - name: a\n", "state.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("MAILPOLL_MAILBOX", "m@example.com")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err == nil || !strings.Contains(err.Error(), "at least one instance") {
		t.Errorf("Load() err = %v", err)
	}
}
