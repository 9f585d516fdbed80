package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/fieldmap/pkg/logger"
)

func NewMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables, collections and indexes the configured sink needs",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()

			s, err := a.openSink(ctx, c.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if err := s.Migrate(ctx); err != nil {
				return err
			}
			logger.Infof("Sink %s is ready.", a.cfg.Sink)
			return nil
		},
	}
}
