// Package cli handles the command-line interface logic using the Cobra
// library.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BartekS5/fieldmap/internal/config"
	"github.com/BartekS5/fieldmap/internal/connection"
	"github.com/BartekS5/fieldmap/internal/evaluator"
	"github.com/BartekS5/fieldmap/internal/sink"
	"github.com/BartekS5/fieldmap/internal/wizard"
	"github.com/BartekS5/fieldmap/pkg/logger"
)

// app carries what every command needs once the root command has loaded
// the configuration.
type app struct {
	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "fieldmap",
		Short: "fieldmap - map JSON API responses onto flat, typed data store fields",
		Long: `fieldmap turns a sample API response into a schema tree, lets you map
its fields onto named and typed output fields with JSONata cleaning rules,
validates the result and saves it as a data store job for a downstream executor.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(
		NewTreeCmd(a),
		NewValidateCmd(a),
		NewPreviewCmd(a),
		NewTestConnectionCmd(a),
		NewSaveCmd(a),
		NewMigrateCmd(a),
		NewValidateProductCmd(a),
	)

	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.LogFile, logger.ParseLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) newSession(root string, existingNames []string) *wizard.Session {
	return wizard.New(evaluator.NewJSONata(), wizard.Options{
		Debounce:      a.cfg.ValidationDebounce,
		Tester:        connection.NewTester(connection.WithRate(a.cfg.ConnectionTestRate, 1)),
		ExistingNames: existingNames,
		SampleRoot:    root,
	})
}

func (a *app) openSink(ctx context.Context, out io.Writer) (sink.Sink, error) {
	conn, err := a.cfg.SinkConnString()
	if err != nil {
		return nil, err
	}
	return sink.Open(ctx, sink.Options{
		Kind:       a.cfg.Sink,
		ConnString: conn,
		Database:   a.cfg.MongoDatabase,
		Out:        out,
	})
}
