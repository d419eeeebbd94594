package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/screener/internal/core"
)

func playlistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playlist",
		Short: "Playlist commands",
	}

	cmd.AddCommand(playlistListCommand())
	cmd.AddCommand(playlistShowCommand())
	cmd.AddCommand(playlistInsertCommand())
	cmd.AddCommand(playlistUpdateCommand())
	cmd.AddCommand(playlistDeleteCommand())

	return cmd
}

func playlistListCommand() *cobra.Command {
	var idsOnly bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			if idsOnly {
				result, err := app.service.PlaylistIDs(ctx)
				if err != nil {
					return err
				}
				return app.printer.Print(result)
			}
			result, err := app.service.Playlists(ctx, nil)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "list ids only")
	return cmd
}

func playlistShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <playlistId>...",
		Short: "Show playlists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.Playlists(ctx, args)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func playlistInsertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "insert [file|-]",
		Short: "Store a new playlist document",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			doc, err := readFileOrStdin(cmd, path)
			if err != nil {
				return core.WrapError(core.ExitUsage, "read playlist", err)
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.InsertPlaylist(ctx, doc)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func playlistUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update <playlistId> [file|-]",
		Short: "Replace a playlist document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			doc, err := readFileOrStdin(cmd, path)
			if err != nil {
				return core.WrapError(core.ExitUsage, "read playlist", err)
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.UpdatePlaylist(ctx, args[0], doc); err != nil {
				return err
			}
			return app.printer.Print(nil)
		},
	}
}

func playlistDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <playlistId>",
		Short: "Delete a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.DeletePlaylist(ctx, args[0]); err != nil {
				return err
			}
			return app.printer.Print(nil)
		},
	}
}
