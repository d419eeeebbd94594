package screenerd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screenerd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	state := t.TempDir()
	path := writeConfig(t, ""+
		"[server]\n"+
		"listen = \"127.0.0.1:9600\"\n"+
		"log_level = \"debug\"\n"+
		"\n"+
		"[storage]\n"+
		"state_dir = \""+state+"\"\n"+
		"assets = \"/srv/assets\"\n"+
		"\n"+
		"[ingest.ftp]\n"+
		"host = \"dist.example.com\"\n"+
		"mode = \"pasv\"\n"+
		"\n"+
		"[modules.embedded_mqtt]\n"+
		"enabled = true\n"+
		"allow_anonymous = true\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9600" || cfg.Server.LogLevel != "debug" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Storage.Assets != "/srv/assets" {
		t.Fatalf("expected explicit assets path, got %q", cfg.Storage.Assets)
	}
	if cfg.Storage.Incoming != filepath.Join(state, "incoming") || cfg.Storage.HistoryDB != filepath.Join(state, "history.db") {
		t.Fatalf("expected derived storage paths, got %+v", cfg.Storage)
	}
	if cfg.Modules.EmbeddedMQTT.Listen != "127.0.0.1:1883" {
		t.Fatalf("expected default broker listen, got %q", cfg.Modules.EmbeddedMQTT.Listen)
	}
	if cfg.EmbeddedBrokerURL() != "mqtt://127.0.0.1:1883" {
		t.Fatalf("unexpected broker url %q", cfg.EmbeddedBrokerURL())
	}
	if conn := cfg.DefaultConnection(); conn.Host != "dist.example.com" || conn.Mode != "pasv" {
		t.Fatalf("unexpected default connection %+v", conn)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[server]\nlisten = \":9500\"\nlisten_port = 1\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "server.listen_port") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
	if _, err := LoadConfig(writeConfig(t, "[server\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	var cfg Config
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Server.Listen != ":9500" {
		t.Fatalf("expected default listen, got %q", cfg.Server.Listen)
	}
	if cfg.Storage.StateDir != "/tmp/xdg-state/screener" {
		t.Fatalf("unexpected state dir %q", cfg.Storage.StateDir)
	}
	if cfg.MQTT.TopicBase != "screener/v1" {
		t.Fatalf("unexpected topic base %q", cfg.MQTT.TopicBase)
	}
	if Millis(cfg.Modules.Feed.IntervalMS).Minutes() != 5 {
		t.Fatalf("expected five minute feed interval")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Config{}
		cfg.Storage.StateDir = t.TempDir()
		if err := cfg.ApplyDefaults(); err != nil {
			t.Fatalf("defaults: %v", err)
		}
		return cfg
	}
	cases := map[string]func(*Config){
		"listen":    func(c *Config) { c.Server.Listen = "nope" },
		"format":    func(c *Config) { c.Server.LogFormat = "xml" },
		"timeout":   func(c *Config) { c.Ingest.DownloadTimeoutMS = -1 },
		"mode":      func(c *Config) { c.Ingest.FTP.Mode = "sideways" },
		"active":    func(c *Config) { c.Ingest.FTP.Mode = "active" },
		"port":      func(c *Config) { c.Ingest.FTP.Port = 70000 },
		"anonymous": func(c *Config) { c.Modules.EmbeddedMQTT.Enabled = true; c.Modules.EmbeddedMQTT.Listen = "127.0.0.1:1883" },
		"feed":      func(c *Config) { c.Modules.Feed.Enabled = true },
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path != "/tmp/xdg/screener/screenerd.toml" {
		t.Fatalf("unexpected path %q", path)
	}
}
