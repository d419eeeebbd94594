package main

import (
	"context"

	"github.com/spf13/cobra"
)

func titlesCommand() *cobra.Command {
	var idsOnly bool

	cmd := &cobra.Command{
		Use:   "titles [cplId...]",
		Short: "List ingested compositions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			if idsOnly {
				result, err := app.service.TitleIDs(ctx)
				if err != nil {
					return err
				}
				return app.printer.Print(result)
			}
			result, err := app.service.Titles(ctx, args)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "list ids only")
	return cmd
}
