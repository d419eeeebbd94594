package screenerd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mikey-austin/screener/internal/modules/broker"
	"github.com/mikey-austin/screener/pkg/screener"
)

// Config is the top-level configuration for screenerd.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Ingest  IngestConfig  `toml:"ingest"`
	MQTT    MQTTConfig    `toml:"mqtt"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines the command listener and logging.
type ServerConfig struct {
	Listen        string `toml:"listen"`
	MaxFrameBytes uint64 `toml:"max_frame_bytes"`
	IdleTimeoutMS int64  `toml:"idle_timeout_ms"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogOutput     string `toml:"log_output"`
	LogSource     bool   `toml:"log_source"`
	LogUTC        bool   `toml:"log_utc"`
	LogColor      bool   `toml:"log_color"`
}

// StorageConfig locates on-disk state. Empty paths are derived from StateDir.
type StorageConfig struct {
	StateDir  string `toml:"state_dir"`
	Incoming  string `toml:"incoming"`
	Assets    string `toml:"assets"`
	Ingest    string `toml:"ingest"`
	Playlists string `toml:"playlists"`
	HistoryDB string `toml:"history_db"`
}

// IngestConfig tunes the ingest worker.
type IngestConfig struct {
	DownloadTimeoutMS int64     `toml:"download_timeout_ms"`
	FTPTimeoutMS      int64     `toml:"ftp_timeout_ms"`
	VerifyHashes      bool      `toml:"verify_hashes"`
	FTP               FTPConfig `toml:"ftp"`
}

// FTPConfig is the default distribution server.
type FTPConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	User   string `toml:"user"`
	Passwd string `toml:"passwd"`
	Mode   string `toml:"mode"`
}

// MQTTConfig configures notification publishing. An empty broker disables
// notifications unless the embedded broker is enabled.
type MQTTConfig struct {
	Broker    string     `toml:"broker"`
	ClientID  string     `toml:"client_id"`
	TopicBase string     `toml:"topic_base"`
	TimeoutMS int64      `toml:"timeout_ms"`
	Debug     bool       `toml:"debug"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds optional module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
	Feed         FeedConfig         `toml:"feed"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// FeedConfig configures the release feed watcher.
type FeedConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	IntervalMS int64  `toml:"interval_ms"`
	TimeoutMS  int64  `toml:"timeout_ms"`
}

// LoadConfig loads a config file from path and applies defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() error {
	if c.Server.Listen == "" {
		c.Server.Listen = fmt.Sprintf(":%d", screener.DefaultPort)
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "console"
	}

	if c.Storage.StateDir == "" {
		dir, err := DefaultStateDir()
		if err != nil {
			return err
		}
		c.Storage.StateDir = dir
	}
	derive := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(c.Storage.StateDir, name)
		}
	}
	derive(&c.Storage.Incoming, "incoming")
	derive(&c.Storage.Assets, "assets")
	derive(&c.Storage.Ingest, "ingest")
	derive(&c.Storage.Playlists, "playlists")
	derive(&c.Storage.HistoryDB, "history.db")

	if c.MQTT.TopicBase == "" {
		c.MQTT.TopicBase = screener.BaseTopic
	}
	if c.MQTT.TimeoutMS == 0 {
		c.MQTT.TimeoutMS = 2000
	}
	if c.Modules.EmbeddedMQTT.Enabled && c.Modules.EmbeddedMQTT.Listen == "" {
		c.Modules.EmbeddedMQTT.Listen = broker.DefaultListen
	}
	if c.Modules.Feed.IntervalMS == 0 {
		c.Modules.Feed.IntervalMS = int64((5 * time.Minute) / time.Millisecond)
	}
	return nil
}

// Validate reports configuration the daemon cannot start with.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("server.listen: %w", err)
	}
	switch strings.ToLower(c.Server.LogFormat) {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("server.log_format: unknown format %q", c.Server.LogFormat)
	}
	if c.Server.IdleTimeoutMS < 0 || c.Ingest.DownloadTimeoutMS < 0 || c.Ingest.FTPTimeoutMS < 0 {
		return errors.New("timeouts must not be negative")
	}
	switch strings.ToLower(c.Ingest.FTP.Mode) {
	case "", "passive", "pasv", "epsv":
	case "active":
		return errors.New("ingest.ftp.mode: active mode is not supported")
	default:
		return fmt.Errorf("ingest.ftp.mode: unknown mode %q", c.Ingest.FTP.Mode)
	}
	if c.Ingest.FTP.Port < 0 || c.Ingest.FTP.Port > 65535 {
		return fmt.Errorf("ingest.ftp.port: %d out of range", c.Ingest.FTP.Port)
	}
	if c.Modules.EmbeddedMQTT.Enabled {
		if _, _, err := net.SplitHostPort(c.Modules.EmbeddedMQTT.Listen); err != nil {
			return fmt.Errorf("modules.embedded_mqtt.listen: %w", err)
		}
		if !c.Modules.EmbeddedMQTT.AllowAnonymous && c.Modules.EmbeddedMQTT.Username == "" {
			return errors.New("modules.embedded_mqtt: username required unless allow_anonymous")
		}
	}
	if c.Modules.Feed.Enabled && strings.TrimSpace(c.Modules.Feed.URL) == "" {
		return errors.New("modules.feed.url required when enabled")
	}
	return nil
}

// EmbeddedBrokerURL is the URL clients use to reach the embedded broker.
func (c Config) EmbeddedBrokerURL() string {
	e := c.Modules.EmbeddedMQTT
	listen := e.Listen
	if listen == "" {
		listen = broker.DefaultListen
	}
	return broker.URL(listen, e.TLSCert != "" || e.TLSKey != "" || e.TLSCA != "")
}

// DefaultConnection is the FTP server used by requests without details.
func (c Config) DefaultConnection() screener.ConnectionDetails {
	return screener.ConnectionDetails{
		Host:   c.Ingest.FTP.Host,
		Port:   c.Ingest.FTP.Port,
		User:   c.Ingest.FTP.User,
		Passwd: c.Ingest.FTP.Passwd,
		Mode:   c.Ingest.FTP.Mode,
	}
}

// Millis converts a config millisecond count.
func Millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "screener", "screenerd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "screener", "screenerd.toml"), nil
}

// DefaultStateDir returns the default state directory.
func DefaultStateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "screener"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "screener"), nil
}
