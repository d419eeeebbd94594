package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/screener/internal/core"
)

func scheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule commands",
	}

	cmd.AddCommand(scheduleListCommand())
	cmd.AddCommand(scheduleShowCommand())
	cmd.AddCommand(scheduleAddCommand("cpl <cplId> <start>", "Schedule a composition", core.Service.ScheduleCPL))
	cmd.AddCommand(scheduleAddCommand("playlist <playlistId> <start>", "Schedule a playlist", core.Service.SchedulePlaylist))
	cmd.AddCommand(scheduleDeleteCommand())

	return cmd
}

func scheduleListCommand() *cobra.Command {
	var idsOnly bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List schedule entries in start order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			if idsOnly {
				result, err := app.service.ScheduleIDs(ctx)
				if err != nil {
					return err
				}
				return app.printer.Print(result)
			}
			result, err := app.service.Schedules(ctx, nil)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "list ids only")
	return cmd
}

func scheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <scheduleId>...",
		Short: "Show schedule entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.Schedules(ctx, args)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

// scheduleAddCommand takes a start of unix seconds, RFC 3339 or "+90m".
func scheduleAddCommand(use, short string, add func(core.Service, context.Context, string, int64) (core.CreatedResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			start, err := app.service.ParseStart(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := add(app.service, ctx, args[0], start)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func scheduleDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <scheduleId>",
		Short: "Delete a schedule entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.DeleteSchedule(ctx, args[0]); err != nil {
				return err
			}
			return app.printer.Print(nil)
		},
	}
}

func modeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mode [SCHEDULE|MANUAL]",
		Short: "Show or set the schedule mode",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			var (
				result core.ModeResult
				err    error
			)
			if len(args) == 1 {
				result, err = app.service.SetMode(ctx, args[0])
			} else {
				result, err = app.service.Mode(ctx)
			}
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
