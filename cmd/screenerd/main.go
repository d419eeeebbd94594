package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/adapters/ftpclient"
	"github.com/mikey-austin/screener/internal/adapters/historydb"
	"github.com/mikey-austin/screener/internal/adapters/mqttserver"
	"github.com/mikey-austin/screener/internal/adapters/tlsfiles"
	"github.com/mikey-austin/screener/internal/dcp"
	"github.com/mikey-austin/screener/internal/modules/broker"
	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/internal/modules/feedwatch"
	"github.com/mikey-austin/screener/internal/modules/playback"
	"github.com/mikey-austin/screener/internal/modules/playlist"
	"github.com/mikey-austin/screener/internal/modules/schedule"
	"github.com/mikey-austin/screener/internal/screenerd"
	"github.com/mikey-austin/screener/internal/server"
)

type overrides struct {
	listen    string
	stateDir  string
	broker    string
	topicBase string
	logLevel  string
	logFormat string
	logOutput string
	logSource bool
	logUTC    bool
	logColor  bool
}

func main() {
	var (
		configPath  string
		ov          overrides
		printConfig bool
		dryRun      bool
	)

	defaultConfig, err := screenerd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&ov.listen, "listen", "", "command listener address override")
	flag.StringVar(&ov.stateDir, "state-dir", "", "state directory override")
	flag.StringVar(&ov.broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&ov.topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&ov.logLevel, "log-level", "", "log level override")
	flag.StringVar(&ov.logFormat, "log-format", "", "log format override (console|json)")
	flag.StringVar(&ov.logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&ov.logSource, "log-source", false, "include source file in logs")
	flag.BoolVar(&ov.logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&ov.logColor, "log-color", false, "enable colored log output (console only)")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := loadConfig(configPath, configPath == defaultConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := applyOverrides(&cfg, ov); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if printConfig {
		if err := printResolvedConfig(os.Stdout, cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if dryRun {
		return
	}

	logger, err := screenerd.NewLogger(screenerd.LogConfig{
		Level:     cfg.Server.LogLevel,
		Format:    cfg.Server.LogFormat,
		Output:    cfg.Server.LogOutput,
		AddSource: cfg.Server.LogSource,
		UTC:       cfg.Server.LogUTC,
		Color:     cfg.Server.LogColor,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lock, err := acquireLock(cfg.Storage.StateDir)
	if err != nil {
		logger.Error("state directory locked", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = lock.Unlock() }()

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		logger.Error("failed to build daemon", zap.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	logger.Info("screenerd starting",
		zap.Stringer("listen", d.server.Addr()),
		zap.String("state_dir", cfg.Storage.StateDir),
		zap.String("broker", d.brokerURL),
		zap.String("topic_base", cfg.MQTT.TopicBase),
		zap.Strings("modules", d.names()),
	)

	supervisor := screenerd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, d.modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		d.Close()
		os.Exit(1)
	}
}

// loadConfig reads path. A missing file at the default location yields the
// built-in defaults so the daemon runs without any setup.
func loadConfig(path string, isDefault bool) (screenerd.Config, error) {
	cfg, err := screenerd.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if !isDefault || !errors.Is(err, os.ErrNotExist) {
		return screenerd.Config{}, err
	}
	cfg = screenerd.Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return screenerd.Config{}, err
	}
	return cfg, nil
}

func applyOverrides(cfg *screenerd.Config, ov overrides) error {
	if ov.listen != "" {
		cfg.Server.Listen = ov.listen
	}
	if ov.stateDir != "" {
		stateDir, err := filepath.Abs(ov.stateDir)
		if err != nil {
			return fmt.Errorf("state dir: %w", err)
		}
		old := cfg.Storage.StateDir
		cfg.Storage.StateDir = stateDir
		// Re-derive paths that followed the old state dir.
		for _, p := range []*string{&cfg.Storage.Incoming, &cfg.Storage.Assets, &cfg.Storage.Ingest, &cfg.Storage.Playlists, &cfg.Storage.HistoryDB} {
			if old != "" && filepath.Dir(*p) == old {
				*p = ""
			}
		}
		if err := cfg.ApplyDefaults(); err != nil {
			return fmt.Errorf("apply defaults: %w", err)
		}
	}
	if ov.broker != "" {
		cfg.MQTT.Broker = ov.broker
	}
	if ov.topicBase != "" {
		cfg.MQTT.TopicBase = ov.topicBase
	}
	if ov.logLevel != "" {
		cfg.Server.LogLevel = ov.logLevel
	}
	if ov.logFormat != "" {
		cfg.Server.LogFormat = ov.logFormat
	}
	if ov.logOutput != "" {
		cfg.Server.LogOutput = ov.logOutput
	}
	if ov.logSource {
		cfg.Server.LogSource = true
	}
	if ov.logUTC {
		cfg.Server.LogUTC = true
	}
	if ov.logColor {
		cfg.Server.LogColor = true
	}
	return nil
}

func printResolvedConfig(w io.Writer, cfg screenerd.Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// acquireLock takes an exclusive lock on the state directory so two
// daemons never share a content store.
func acquireLock(stateDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(stateDir, "screenerd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("another screenerd holds %s", lock.Path())
	}
	return lock, nil
}

type daemon struct {
	server    *server.Server
	content   *content.Service
	modules   []screenerd.ModuleRunner
	brokerURL string
	closers   []func()
}

func (d *daemon) names() []string {
	out := make([]string, 0, len(d.modules))
	for _, m := range d.modules {
		out = append(out, m.Name)
	}
	return out
}

// Close releases resources in reverse order. It is safe to call twice.
func (d *daemon) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// buildDaemon wires every subsystem from cfg. The command listener is bound
// before it returns.
func buildDaemon(cfg screenerd.Config, logger *zap.Logger) (d *daemon, err error) {
	d = &daemon{}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	publisher, err := buildPublisher(cfg, logger, d)
	if err != nil {
		return nil, err
	}
	var notifier *mqttserver.Notifier
	if publisher != nil {
		notifier = mqttserver.NewNotifier(logger.With(zap.String("module", "notifier")), publisher, cfg.MQTT.TopicBase)
	}

	journal, err := historydb.Open(cfg.Storage.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open ingest history: %w", err)
	}
	d.closers = append(d.closers, func() { _ = journal.Close() })

	opts := []content.Option{content.WithJournal(journal)}
	if notifier != nil {
		opts = append(opts, content.WithNotifier(notifier))
	}
	svc, err := content.NewService(logger.With(zap.String("module", "content")), content.Config{
		IncomingPath: cfg.Storage.Incoming,
		AssetsPath:   cfg.Storage.Assets,
		IngestPath:   cfg.Storage.Ingest,
		Connection:   cfg.DefaultConnection(),
	}, opts...)
	if err != nil {
		return nil, err
	}
	d.content = svc
	count, err := svc.Reindex()
	if err != nil {
		return nil, fmt.Errorf("reindex assets: %w", err)
	}
	logger.Info("content indexed", zap.Int("titles", count), zap.String("assets", cfg.Storage.Assets))

	transfer := ftpclient.New(ftpclient.Options{
		Timeout: screenerd.Millis(cfg.Ingest.FTPTimeoutMS),
		Logger:  logger.With(zap.String("module", "ftp")),
	})
	ingester, err := content.NewIngester(logger.With(zap.String("module", "ingester")), svc, transfer,
		dcp.Parser{VerifyHashes: cfg.Ingest.VerifyHashes},
		content.IngesterConfig{DownloadTimeout: screenerd.Millis(cfg.Ingest.DownloadTimeoutMS)})
	if err != nil {
		return nil, err
	}

	storage, err := playlist.NewStorage(cfg.Storage.Playlists)
	if err != nil {
		return nil, err
	}
	playlists, err := playlist.NewStore(logger.With(zap.String("module", "playlist")), storage, nil)
	if err != nil {
		return nil, err
	}
	schedules, err := schedule.New(logger.With(zap.String("module", "schedule")), schedule.Config{
		TitleExists:    svc.HasTitle,
		PlaylistExists: playlists.Has,
	})
	if err != nil {
		return nil, err
	}
	var playbackNotifier playback.Notifier
	if notifier != nil {
		playbackNotifier = notifier
	}
	player := playback.NewEngine(logger.With(zap.String("module", "playback")), server.NewCatalog(svc, playlists), playbackNotifier)

	scr, err := server.NewScreener(logger.With(zap.String("module", "dispatch")), server.Deps{
		Content:   svc,
		Playlists: playlists,
		Schedules: schedules,
		Player:    player,
		Now:       time.Now,
	})
	if err != nil {
		return nil, err
	}
	var feedRunner *screenerd.ModuleRunner
	if cfg.Modules.Feed.Enabled {
		watcher, err := feedwatch.New(logger.With(zap.String("module", "feed")), svc, feedwatch.Config{
			URL:      cfg.Modules.Feed.URL,
			Interval: screenerd.Millis(cfg.Modules.Feed.IntervalMS),
			Timeout:  screenerd.Millis(cfg.Modules.Feed.TimeoutMS),
		})
		if err != nil {
			return nil, err
		}
		feedRunner = &screenerd.ModuleRunner{Name: "feed", Run: watcher.Run}
	}
	srv, err := server.Listen(logger.With(zap.String("module", "server")), scr, server.Config{
		Addr:          cfg.Server.Listen,
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		IdleTimeout:   screenerd.Millis(cfg.Server.IdleTimeoutMS),
	})
	if err != nil {
		return nil, err
	}
	d.server = srv
	d.modules = append(d.modules,
		screenerd.ModuleRunner{Name: "server", Run: srv.Run},
		screenerd.ModuleRunner{Name: "ingester", Run: ingester.Run},
	)
	if feedRunner != nil {
		d.modules = append(d.modules, *feedRunner)
	}

	return d, nil
}

// buildPublisher picks where notifications go: the embedded broker when it
// is enabled and no other broker is named, otherwise an external broker
// over MQTT. It returns nil when notifications are off.
func buildPublisher(cfg screenerd.Config, logger *zap.Logger, d *daemon) (mqttserver.Publisher, error) {
	embedded := cfg.Modules.EmbeddedMQTT
	if embedded.Enabled {
		b, err := broker.New(logger.With(zap.String("module", "embedded_mqtt")), broker.Config{
			Listen:         embedded.Listen,
			AllowAnonymous: embedded.AllowAnonymous,
			Username:       embedded.Username,
			Password:       embedded.Password,
			TLS:            tlsfiles.Files{CA: embedded.TLSCA, Cert: embedded.TLSCert, Key: embedded.TLSKey},
		})
		if err != nil {
			return nil, err
		}
		d.modules = append(d.modules, screenerd.ModuleRunner{Name: "embedded_mqtt", Run: b.Run})
		if cfg.MQTT.Broker == "" || cfg.MQTT.Broker == cfg.EmbeddedBrokerURL() {
			d.brokerURL = b.URL()
			return b, nil
		}
	}
	if cfg.MQTT.Broker == "" {
		return nil, nil
	}

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("screenerd-%d", time.Now().UnixNano())
	}
	client, err := mqttserver.NewClient(mqttserver.Options{
		BrokerURL: cfg.MQTT.Broker,
		ClientID:  clientID,
		Username:  cfg.MQTT.Auth.User,
		Password:  cfg.MQTT.Auth.Pass,
		TLS:       tlsfiles.Files{CA: cfg.MQTT.TLS.CA, Cert: cfg.MQTT.TLS.Cert, Key: cfg.MQTT.TLS.Key},
		Timeout:   screenerd.Millis(cfg.MQTT.TimeoutMS),
		Logger:    logger.With(zap.String("module", "mqtt")),
		Debug:     cfg.MQTT.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	d.closers = append(d.closers, client.Close)
	d.brokerURL = cfg.MQTT.Broker
	return client, nil
}
