package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"protonet/internal/config"
	"protonet/internal/episode"
	"protonet/internal/model"
	"protonet/internal/pool"
	"protonet/internal/storage"
	"protonet/internal/trainer"
	protoapi "protonet/pkg/protonet"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "protonetctl",
		Short:         "Episodic few-shot training and evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML configuration path")
	rootCmd.PersistentFlags().String("store", "", "store backend override: memory|sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "sqlite database path override")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "evaluation artifacts directory override")

	rootCmd.AddCommand(
		initCmd(),
		resetCmd(),
		trainCmd(),
		evalCmd(),
		sampleCmd(),
		runsCmd(),
		historyCmd(),
		reportCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config (or the defaults) and
// applies the store and artifacts flag overrides on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if kind, _ := cmd.Flags().GetString("store"); kind != "" {
		cfg.Store.Kind = kind
	}
	if dbPath, _ := cmd.Flags().GetString("db-path"); dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if dir, _ := cmd.Flags().GetString("artifacts-dir"); dir != "" {
		cfg.ArtifactsDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newClient(cfg config.Config) (*protoapi.Client, error) {
	return protoapi.New(protoapi.Options{
		StoreKind:    cfg.Store.Kind,
		DBPath:       cfg.Store.Path,
		ArtifactsDir: cfg.ArtifactsDir,
	})
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the run-history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if err := client.Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("initialized store=%s\n", storeName(cfg))
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop all persisted runs, histories and reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.Path)
			if err != nil {
				return err
			}
			defer func() { _ = storage.CloseIfSupported(store) }()

			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			resetter, ok := store.(storage.Resetter)
			if !ok {
				return fmt.Errorf("store %s does not support reset", storeName(cfg))
			}
			if err := resetter.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("reset store=%s\n", storeName(cfg))
			return nil
		},
	}
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run episodic training, optionally followed by evaluation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			evaluate, _ := cmd.Flags().GetBool("eval")
			quiet, _ := cmd.Flags().GetBool("quiet")

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}

			var observer trainer.Observer
			if !quiet {
				observer = trainer.ObserverFunc(func(m model.EpisodeMetrics) {
					fmt.Printf("episode=%d loss=%.6f accuracy=%.4f\n", m.Episode, m.Loss, m.Accuracy)
				})
			}

			summary, err := client.Train(cmd.Context(), protoapi.TrainRequest{
				Config:   cfg,
				RunID:    runID,
				Evaluate: evaluate,
				Observer: observer,
			})
			if err != nil {
				return err
			}

			fmt.Printf("train completed run_id=%s episodes=%d final_loss=%.6f final_accuracy=%.4f\n",
				summary.RunID, summary.Episodes, summary.FinalLoss, summary.FinalAccuracy)
			if summary.Report != nil {
				printReport(*summary.Report)
				fmt.Printf("report_path=%s\n", summary.ReportPath)
			}
			return nil
		},
	}
	cmd.Flags().String("run-id", "", "run identifier (minted when empty)")
	cmd.Flags().Bool("eval", true, "evaluate the trained model on a held-out task stream")
	cmd.Flags().Bool("quiet", false, "suppress per-episode output")
	return cmd
}

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a freshly initialized model as an untrained baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}

			summary, err := client.Evaluate(cmd.Context(), protoapi.EvaluateRequest{
				Config: cfg,
				RunID:  runID,
			})
			if err != nil {
				return err
			}
			printReport(summary.Report)
			fmt.Printf("report_path=%s\n", summary.ReportPath)
			return nil
		},
	}
	cmd.Flags().String("run-id", "", "run identifier for the report")
	return cmd
}

func sampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw one episodic task from the configured pool and print its composition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			if count < 1 {
				count = 1
			}

			p, err := buildPool(cfg.Pool)
			if err != nil {
				return err
			}
			if err := cfg.ValidateForPool(len(p.Labels())); err != nil {
				return err
			}

			params := episode.Params{NWay: cfg.NWay, KShot: cfg.KShot, KQuery: cfg.KQuery}
			stream, err := episode.NewStream(p, params, cfg.Seed(1))
			if err != nil {
				return err
			}
			for i := 1; i <= count; i++ {
				task, err := stream.Next()
				if err != nil {
					return fmt.Errorf("episode %d: %w", i, err)
				}
				fmt.Printf("episode=%d n_way=%d k_shot=%d k_query=%d labels=%v\n",
					i, task.NWay, task.KShot, task.KQuery, task.Labels)
			}
			return nil
		},
	}
	cmd.Flags().Int("count", 1, "number of tasks to sample")
	return cmd
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List persisted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}

			runs, err := client.Runs(cmd.Context())
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Printf("run_id=%s created_at=%s n_way=%d k_shot=%d k_query=%d episodes=%d metric=%s seed=%d\n",
					run.ID, run.CreatedAt, run.NWay, run.KShot, run.KQuery, run.Episodes, run.Metric, run.Seed)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <run-id>",
		Short: "Print the per-episode training metrics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}

			history, err := client.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, m := range history {
				fmt.Printf("episode=%d loss=%.6f accuracy=%.4f\n", m.Episode, m.Loss, m.Accuracy)
			}
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "Print the persisted evaluation report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}

			report, err := client.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}
}

func printReport(report model.EvaluationReport) {
	fmt.Printf("evaluation run_id=%s episodes=%d metric=%s mean_accuracy=%.4f confidence_interval=%.4f\n",
		report.RunID, report.Episodes, report.Metric, report.MeanAccuracy, report.ConfidenceInterval)
}

func storeName(cfg config.Config) string {
	if cfg.Store.Kind == "" {
		return "memory"
	}
	return cfg.Store.Kind
}

func buildPool(cfg config.PoolConfig) (*pool.Pool, error) {
	if cfg.CSVPath != "" {
		return pool.LoadCSV(cfg.CSVPath)
	}
	s := cfg.Synthetic
	return pool.Clustered(s.Labels, s.PerLabel, s.Dim, s.Spread, s.Seed)
}
