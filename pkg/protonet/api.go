// Package protonet is the embedding-facing API: it wires a pool, an
// embedding model, the trainer and the evaluator together behind a small
// client so callers never touch the internal packages directly.
package protonet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"protonet/internal/config"
	"protonet/internal/embed"
	"protonet/internal/episode"
	"protonet/internal/evaluator"
	"protonet/internal/model"
	"protonet/internal/pool"
	core "protonet/internal/protonet"
	"protonet/internal/stats"
	"protonet/internal/storage"
	"protonet/internal/trainer"
)

const defaultDBPath = "protonet.db"

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
}

type Client struct {
	store        storage.Store
	artifactsDir string
}

type TrainRequest struct {
	Config   config.Config
	RunID    string
	Evaluate bool
	Observer trainer.Observer
}

type TrainSummary struct {
	RunID         string
	Episodes      int
	FinalLoss     float64
	FinalAccuracy float64
	Report        *model.EvaluationReport
	ReportPath    string
}

type EvaluateRequest struct {
	Config config.Config
	RunID  string
}

type EvaluateSummary struct {
	Report     model.EvaluationReport
	ReportPath string
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = "artifacts"
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Train runs an episodic training loop and, when requested, a held-out
// evaluation on the trained model with an independent task stream.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return TrainSummary{}, err
	}

	p, err := buildPool(cfg.Pool)
	if err != nil {
		return TrainSummary{}, err
	}
	if err := cfg.ValidateForPool(len(p.Labels())); err != nil {
		return TrainSummary{}, err
	}

	seed := cfg.Seed(time.Now().UnixNano())
	embedder, err := buildModel(cfg, p, seed)
	if err != nil {
		return TrainSummary{}, err
	}
	metric, err := core.ParseMetric(cfg.DistanceMetric)
	if err != nil {
		return TrainSummary{}, err
	}

	tr, err := trainer.New(trainer.Config{
		Pool:         p,
		Model:        embedder,
		Params:       episode.Params{NWay: cfg.NWay, KShot: cfg.KShot, KQuery: cfg.KQuery},
		Episodes:     cfg.TrainEpisodes,
		Metric:       metric,
		Seed:         seed,
		RunID:        req.RunID,
		LearningRate: cfg.LearningRate,
		Observer:     req.Observer,
		Store:        c.store,
	})
	if err != nil {
		return TrainSummary{}, err
	}

	result, err := tr.Run(ctx)
	if err != nil {
		return TrainSummary{}, err
	}

	summary := TrainSummary{
		RunID:    result.RunID,
		Episodes: len(result.History),
	}
	if len(result.History) > 0 {
		last := result.History[len(result.History)-1]
		summary.FinalLoss = last.Loss
		summary.FinalAccuracy = last.Accuracy
	}

	if req.Evaluate && cfg.EvalEpisodes > 0 {
		report, path, err := c.evaluate(ctx, cfg, p, embedder, metric, seed+1, result.RunID)
		if err != nil {
			return TrainSummary{}, err
		}
		summary.Report = &report
		summary.ReportPath = path
	}
	return summary, nil
}

// Evaluate scores a freshly initialized model under the configured episode
// parameters. It is the untrained baseline for a configuration; evaluating a
// trained model happens through Train with Evaluate set.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return EvaluateSummary{}, err
	}

	p, err := buildPool(cfg.Pool)
	if err != nil {
		return EvaluateSummary{}, err
	}
	if err := cfg.ValidateForPool(len(p.Labels())); err != nil {
		return EvaluateSummary{}, err
	}

	seed := cfg.Seed(time.Now().UnixNano())
	embedder, err := buildModel(cfg, p, seed)
	if err != nil {
		return EvaluateSummary{}, err
	}
	metric, err := core.ParseMetric(cfg.DistanceMetric)
	if err != nil {
		return EvaluateSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report, path, err := c.evaluate(ctx, cfg, p, embedder, metric, seed, runID)
	if err != nil {
		return EvaluateSummary{}, err
	}
	return EvaluateSummary{Report: report, ReportPath: path}, nil
}

func (c *Client) evaluate(ctx context.Context, cfg config.Config, p *pool.Pool, embedder embed.Model, metric core.Metric, seed int64, runID string) (model.EvaluationReport, string, error) {
	ev, err := evaluator.New(evaluator.Config{
		Pool:     p,
		Model:    embedder,
		Params:   episode.Params{NWay: cfg.NWay, KShot: cfg.KShot, KQuery: cfg.KQuery},
		Episodes: cfg.EvalEpisodes,
		Metric:   metric,
		Seed:     seed,
		RunID:    runID,
	})
	if err != nil {
		return model.EvaluationReport{}, "", err
	}
	report, err := ev.Run(ctx)
	if err != nil {
		return model.EvaluationReport{}, "", err
	}

	if err := c.store.SaveEvaluationReport(ctx, report); err != nil {
		return model.EvaluationReport{}, "", fmt.Errorf("save evaluation report %s: %w", report.RunID, err)
	}
	path, err := stats.WriteEvaluationReport(c.artifactsDir, report)
	if err != nil {
		return model.EvaluationReport{}, "", err
	}
	return report, path, nil
}

// Runs lists persisted runs, newest last.
func (c *Client) Runs(ctx context.Context) ([]model.RunRecord, error) {
	return c.store.ListRuns(ctx)
}

// History returns the per-episode training metrics of a run.
func (c *Client) History(ctx context.Context, runID string) ([]model.EpisodeMetrics, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	history, ok, err := c.store.GetTrainingHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no training history for run %s", runID)
	}
	return history, nil
}

// Report returns the persisted evaluation report of a run.
func (c *Client) Report(ctx context.Context, runID string) (model.EvaluationReport, error) {
	if runID == "" {
		return model.EvaluationReport{}, fmt.Errorf("run id is required")
	}
	report, ok, err := c.store.GetEvaluationReport(ctx, runID)
	if err != nil {
		return model.EvaluationReport{}, err
	}
	if !ok {
		return model.EvaluationReport{}, fmt.Errorf("no evaluation report for run %s", runID)
	}
	return report, nil
}

func buildPool(cfg config.PoolConfig) (*pool.Pool, error) {
	if cfg.CSVPath != "" {
		return pool.LoadCSV(cfg.CSVPath)
	}
	s := cfg.Synthetic
	return pool.Clustered(s.Labels, s.PerLabel, s.Dim, s.Spread, s.Seed)
}

func buildModel(cfg config.Config, p *pool.Pool, seed int64) (embed.Model, error) {
	inputDim := len(p.Example(0).Input)
	return embed.NewLinear(inputDim, cfg.EmbeddingDim, cfg.LearningRate, seed)
}
