package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/screener/pkg/screener"
)

func ingestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest commands",
	}

	cmd.AddCommand(ingestAddCommand())
	cmd.AddCommand(ingestCancelCommand())
	cmd.AddCommand(ingestInfoCommand())
	cmd.AddCommand(ingestHistoryCommand())
	cmd.AddCommand(ingestClearCommand())

	return cmd
}

func ingestAddCommand() *cobra.Command {
	var conn screener.ConnectionDetails

	cmd := &cobra.Command{
		Use:   "add <dcpPath>",
		Short: "Queue a DCP download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			var details *screener.ConnectionDetails
			if conn.Host != "" {
				details = &conn
			}
			result, err := app.service.Ingest(ctx, args[0], details)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().StringVar(&conn.Host, "host", "", "FTP host (server default when empty)")
	cmd.Flags().IntVar(&conn.Port, "port", 0, "FTP port")
	cmd.Flags().StringVar(&conn.User, "ftp-user", "", "FTP user")
	cmd.Flags().StringVar(&conn.Passwd, "ftp-pass", "", "FTP password")
	cmd.Flags().StringVar(&conn.Mode, "mode", "", "FTP mode (passive|pasv|epsv)")
	return cmd
}

func ingestCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <ingestId>",
		Short: "Cancel a queued ingest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.CancelIngest(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func ingestInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <ingestId>...",
		Short: "Show ingest jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.IngestInfo(ctx, args)
			if len(result.Ingests) > 0 {
				if perr := app.printer.Print(result); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func ingestHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List every recorded ingest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.IngestHistory(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func ingestClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history",
		Short: "Forget finished ingests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			if err := app.service.ClearIngestHistory(ctx); err != nil {
				return err
			}
			return app.printer.Print(nil)
		},
	}
}
