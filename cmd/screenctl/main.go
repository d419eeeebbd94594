package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/screener/internal/adapters/clock"
	"github.com/mikey-austin/screener/internal/adapters/config"
	"github.com/mikey-austin/screener/internal/adapters/klvclient"
	"github.com/mikey-austin/screener/internal/adapters/mqtt"
	"github.com/mikey-austin/screener/internal/adapters/output"
	"github.com/mikey-austin/screener/internal/adapters/tlsfiles"
	"github.com/mikey-austin/screener/internal/core"
	"github.com/mikey-austin/screener/internal/ports"
	"github.com/mikey-austin/screener/pkg/screener"
)

type app struct {
	service core.Service
	printer output.Printer
	timeout time.Duration
	mqtt    mqtt.Options
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(core.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "screenctl",
		Short:         "Control a screenerd playback server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var (
		addr      string
		broker    string
		topicBase string
		timeout   time.Duration
		jsonOut   bool
		noColor   bool
		tlsCA     string
		tlsCert   string
		tlsKey    string
		userOpt   string
		passOpt   string
	)

	root.PersistentFlags().StringVarP(&addr, "addr", "a", "", "screenerd address (host:port)")
	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL for watch")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", "", "MQTT topic base")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "MQTT TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "MQTT TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "MQTT TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		output.ConfigureColor(noColor)

		cfg, err := config.Load()
		if err != nil {
			return core.WrapError(core.ExitUsage, "load config", err)
		}
		if addr == "" {
			addr = cfg.Addr
		}
		if addr == "" {
			addr = fmt.Sprintf("127.0.0.1:%d", screener.DefaultPort)
		}
		if timeout == 0 && cfg.TimeoutMS > 0 {
			timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
		}
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		if broker == "" {
			broker = cfg.Broker
		}
		if topicBase == "" {
			topicBase = cfg.TopicBase
		}
		if topicBase == "" {
			topicBase = screener.BaseTopic
		}
		if userOpt == "" {
			userOpt, passOpt = cfg.MQTT.User, cfg.MQTT.Pass
		}
		tls := tlsfiles.Files{CA: tlsCA, Cert: tlsCert, Key: tlsKey}
		if !tls.Enabled() {
			tls = tlsfiles.Files{CA: cfg.MQTT.TLSCA, Cert: cfg.MQTT.TLSCert, Key: cfg.MQTT.TLSKey}
		}

		coreCfg := core.Config{Addr: addr, Timeout: timeout, Broker: broker, TopicBase: topicBase}
		service := core.Service{
			Transport: &lazyTransport{opts: klvclient.Options{Addr: addr, Timeout: timeout}},
			Clock:     clock.Clock{},
			Config:    coreCfg,
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{Out: cmd.OutOrStdout()}
		} else {
			printer = output.HumanPrinter{Out: cmd.OutOrStdout()}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			timeout: timeout,
			mqtt: mqtt.Options{
				BrokerURL: broker,
				ClientID:  fmt.Sprintf("screenctl-%d", time.Now().UnixNano()),
				Username:  userOpt,
				Password:  passOpt,
				TLS:       tls,
				TopicBase: topicBase,
				Timeout:   timeout,
			},
		}))
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if a := fromContext(cmd); a != nil {
			if t, ok := a.service.Transport.(*lazyTransport); ok {
				return t.Close()
			}
		}
		return nil
	}

	root.AddCommand(statusCommand())
	root.AddCommand(timeCommand())
	root.AddCommand(playCommand())
	root.AddCommand(stopCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(ejectCommand())
	root.AddCommand(loadCommand())
	root.AddCommand(skipCommand())
	root.AddCommand(ingestCommand())
	root.AddCommand(titlesCommand())
	root.AddCommand(playlistCommand())
	root.AddCommand(scheduleCommand())
	root.AddCommand(modeCommand())
	root.AddCommand(watchCommand())
	return root
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	if cmd.Context() == nil {
		return nil
	}
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func readFileOrStdin(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// lazyTransport dials screenerd on first use so commands that never talk to
// the daemon, like watch, work without it.
type lazyTransport struct {
	opts   klvclient.Options
	mu     sync.Mutex
	client *klvclient.Client
}

var _ ports.Transport = (*lazyTransport)(nil)

func (t *lazyTransport) Send(ctx context.Context, cmd screener.Command, args any) (screener.Reply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		client, err := klvclient.Dial(ctx, t.opts)
		if err != nil {
			return screener.Reply{}, err
		}
		t.client = client
	}
	return t.client.Send(ctx, cmd, args)
}

func (t *lazyTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
