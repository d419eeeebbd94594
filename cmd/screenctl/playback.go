package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/screener/internal/core"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show player status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return printStatus(ctx, app)
		},
	}
}

func timeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Show the server clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.SystemTime(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func printStatus(ctx context.Context, app *app) error {
	result, err := app.service.Status(ctx)
	if err != nil {
		return err
	}
	return app.printer.Print(result)
}

// controlCommand runs a player action and then shows the resulting status.
func controlCommand(use, short string, action func(core.Service, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := action(app.service, ctx); err != nil {
				return err
			}
			return printStatus(ctx, app)
		},
	}
}

func playCommand() *cobra.Command {
	return controlCommand("play", "Start playback", core.Service.Play)
}

func stopCommand() *cobra.Command {
	return controlCommand("stop", "Stop playback and rewind", core.Service.Stop)
}

func pauseCommand() *cobra.Command {
	return controlCommand("pause", "Pause playback", core.Service.Pause)
}

func ejectCommand() *cobra.Command {
	return controlCommand("eject", "Unload the current title", core.Service.Eject)
}

func loadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a composition or playlist",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cpl <cplId>",
		Short: "Load a single composition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.LoadCPL(ctx, args[0]); err != nil {
				return err
			}
			return printStatus(ctx, app)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "playlist <playlistId>",
		Short: "Load a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.LoadPlaylist(ctx, args[0]); err != nil {
				return err
			}
			return printStatus(ctx, app)
		},
	})
	return cmd
}

func skipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Move within the loaded playlist",
	}
	cmd.AddCommand(controlCommand("forward", "Skip to the next event", core.Service.SkipForward))
	cmd.AddCommand(controlCommand("backward", "Skip to the previous event", core.Service.SkipBackward))
	cmd.AddCommand(&cobra.Command{
		Use:   "position <seconds>",
		Short: "Skip to a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			pos, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return core.WrapError(core.ExitUsage, "position must be whole seconds", err)
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.SkipToPosition(ctx, pos); err != nil {
				return err
			}
			return printStatus(ctx, app)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "event <eventId>",
		Short: "Skip to a playlist event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.SkipToEvent(ctx, args[0]); err != nil {
				return err
			}
			return printStatus(ctx, app)
		},
	})
	return cmd
}
