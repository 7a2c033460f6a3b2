// Package evaluator runs frozen-parameter episodic evaluation: a seeded,
// training-independent task stream classified with the model's current
// parameters, aggregated into a mean accuracy with a confidence interval.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"protonet/internal/config"
	"protonet/internal/embed"
	"protonet/internal/episode"
	"protonet/internal/model"
	"protonet/internal/pool"
	"protonet/internal/protonet"
	"protonet/internal/stats"
	"protonet/internal/storage"
)

type Config struct {
	Pool     *pool.Pool
	Model    embed.Model
	Params   episode.Params
	Episodes int
	Metric   protonet.Metric
	Seed     int64
	RunID    string
}

type Evaluator struct {
	cfg        Config
	classifier *protonet.Classifier
}

func New(cfg Config) (*Evaluator, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("embedding model is required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Episodes < 0 {
		return nil, fmt.Errorf("episodes must be >= 0, got %d", cfg.Episodes)
	}
	if len(cfg.Pool.Labels()) < cfg.Params.NWay {
		return nil, config.Errorf("pool has %d labels, n_way is %d", len(cfg.Pool.Labels()), cfg.Params.NWay)
	}
	return &Evaluator{
		cfg:        cfg,
		classifier: protonet.NewClassifier(cfg.Metric),
	}, nil
}

// Run never calls Step: model parameters before and after an evaluation are
// identical.
func (e *Evaluator) Run(ctx context.Context) (model.EvaluationReport, error) {
	stream, err := episode.NewStream(e.cfg.Pool, e.cfg.Params, e.cfg.Seed)
	if err != nil {
		return model.EvaluationReport{}, err
	}

	accuracies := make([]float64, 0, e.cfg.Episodes)
	for index := 1; index <= e.cfg.Episodes; index++ {
		if err := ctx.Err(); err != nil {
			return model.EvaluationReport{}, err
		}

		accuracy, err := e.runEpisode(ctx, stream)
		if err != nil {
			return model.EvaluationReport{}, fmt.Errorf("episode %d: %w", index, err)
		}
		accuracies = append(accuracies, accuracy)
	}

	report := model.EvaluationReport{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:              e.cfg.RunID,
		GeneratedAt:        time.Now().UTC().Format(time.RFC3339Nano),
		NWay:               e.cfg.Params.NWay,
		KShot:              e.cfg.Params.KShot,
		KQuery:             e.cfg.Params.KQuery,
		Episodes:           e.cfg.Episodes,
		Seed:               e.cfg.Seed,
		Metric:             e.classifier.Metric().Name(),
		PerEpisodeAccuracy: accuracies,
	}
	if len(accuracies) > 0 {
		mean, err := stats.Mean(accuracies)
		if err != nil {
			return model.EvaluationReport{}, err
		}
		interval, err := stats.ConfidenceInterval95(accuracies)
		if err != nil {
			return model.EvaluationReport{}, err
		}
		report.MeanAccuracy = mean
		report.ConfidenceInterval = interval
	}
	return report, nil
}

func (e *Evaluator) runEpisode(ctx context.Context, stream *episode.Stream) (float64, error) {
	task, err := stream.Next()
	if err != nil {
		return 0, err
	}

	batch := make([][]float64, 0, task.NWay*task.KShot+len(task.Query))
	for _, group := range task.Support {
		batch = append(batch, group...)
	}
	truth := make([]int, len(task.Query))
	for i, q := range task.Query {
		batch = append(batch, q.Input)
		truth[i] = q.Class
	}

	embeddings, err := e.cfg.Model.Embed(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(embeddings) != len(batch) {
		return 0, fmt.Errorf("embed returned %d vectors for %d inputs", len(embeddings), len(batch))
	}

	supportEmbeddings := make([][][]float64, task.NWay)
	offset := 0
	for class := range task.Support {
		supportEmbeddings[class] = embeddings[offset : offset+task.KShot]
		offset += task.KShot
	}

	prototypes, err := protonet.Prototypes(supportEmbeddings)
	if err != nil {
		return 0, err
	}
	result, err := e.classifier.Classify(prototypes, embeddings[offset:])
	if err != nil {
		return 0, err
	}
	return protonet.Accuracy(result, truth)
}
