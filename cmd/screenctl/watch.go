package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/screener/internal/adapters/mqtt"
	"github.com/mikey-austin/screener/internal/core"
)

func watchCommand() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream ingest and playback notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if app.mqtt.BrokerURL == "" {
				return &core.CLIError{Code: core.ExitUsage, Msg: "broker is required to watch (set --broker or config)"}
			}
			client, err := mqtt.NewClient(app.mqtt)
			if err != nil {
				return core.WrapError(core.ExitRuntime, "connect broker", err)
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := app.service
			svc.Notifications = client
			return streamEvents(ctx, svc, app, filter)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "MQTT topic filter (all notifications when empty)")
	return cmd
}

func streamEvents(ctx context.Context, svc core.Service, app *app, filter string) error {
	events, err := svc.Watch(ctx, filter)
	if err != nil {
		return err
	}
	for evt := range events {
		if err := app.printer.Print(evt); err != nil {
			return err
		}
	}
	return nil
}
