package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kiranshivaraju/insightx/internal/analysis"
	"github.com/kiranshivaraju/insightx/internal/config"
	"github.com/kiranshivaraju/insightx/internal/dataset"
	"github.com/kiranshivaraju/insightx/internal/guard"
	"github.com/kiranshivaraju/insightx/internal/store"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dataPath string
	sheet    string
	source   string
	asJSON   bool
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "insightx",
		Short: "Analyze payment transactions with traceable SQL",
		Long: `insightx answers structured analytics questions about a payment
transaction dataset. Every number is computed by a parameterized SQL query
that is printed alongside the result.

Examples:
  # Overall failure rate
  insightx query --data transactions.csv

  # Volume per device and network over the last 7 days
  insightx query -o aggregate -m volume -g device,network --period last_7_days

  # Compare Android with iOS for Food payments
  insightx query -o compare -F category=Food --segment-a device=Android --segment-b device=iOS`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dataPath, "data", "", "dataset file (.csv or .xlsx); defaults to DATA_PATH")
	cmd.PersistentFlags().StringVar(&opts.sheet, "sheet", "", "XLSX sheet name; defaults to the first sheet")
	cmd.PersistentFlags().StringVar(&opts.source, "source", "", "dataset source: file or postgres; defaults to DATA_SOURCE")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log dataset loading to stderr")

	cmd.AddCommand(
		newQueryCmd(opts),
		newCheckCmd(opts),
		newVocabularyCmd(opts),
		newHashKeyCmd(),
	)
	return cmd
}

// config resolves the dataset configuration from the environment, with
// flags taking precedence.
func (o *globalOptions) config() (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.source != "" {
		cfg.Data.Source = o.source
	}
	if o.dataPath != "" {
		cfg.Data.Source = config.SourceFile
		cfg.Data.Path = o.dataPath
	}
	if o.sheet != "" {
		cfg.Data.Sheet = o.sheet
	}
	return cfg, nil
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session is a loaded dataset with its analysis service.
type session struct {
	provider *dataset.Provider
	guard    *guard.Guard
	service  *analysis.Service
}

func (o *globalOptions) open(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := o.logger(stderr)
	p := store.NewProvider(cfg, dataset.WithLogger(logger))
	if _, err := p.Dataset(ctx); err != nil {
		return nil, err
	}

	g := guard.New(guard.WithAvailability(p))
	svc := analysis.NewService(g,
		analysis.NewEngine(p, analysis.WithLogger(logger)),
		analysis.WithServiceLogger(logger),
	)
	return &session{provider: p, guard: g, service: svc}, nil
}

func (s *session) Close() error {
	return s.provider.Close()
}
