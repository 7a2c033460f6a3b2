// Package trainer drives the episodic training loop: one sampled task, one
// batched embedding call, prototype construction, classification, and one
// parameter step per episode.
package trainer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"protonet/internal/config"
	"protonet/internal/embed"
	"protonet/internal/episode"
	"protonet/internal/model"
	"protonet/internal/pool"
	"protonet/internal/protonet"
	"protonet/internal/storage"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Observer receives the per-episode training signal. The trainer imposes no
// output format.
type Observer interface {
	ObserveEpisode(m model.EpisodeMetrics)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(m model.EpisodeMetrics)

func (f ObserverFunc) ObserveEpisode(m model.EpisodeMetrics) { f(m) }

type Config struct {
	Pool     *pool.Pool
	Model    embed.Model
	Params   episode.Params
	Episodes int
	Metric   protonet.Metric
	Seed     int64

	// RunID is minted when empty.
	RunID        string
	LearningRate float64

	// Observer and Store are optional.
	Observer Observer
	Store    storage.Store
}

type RunResult struct {
	RunID   string
	History []model.EpisodeMetrics
}

type Trainer struct {
	cfg        Config
	classifier *protonet.Classifier

	mu    sync.Mutex
	state State
}

func New(cfg Config) (*Trainer, error) {
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

	return &Trainer{
		cfg:        cfg,
		classifier: protonet.NewClassifier(cfg.Metric),
		state:      StateIdle,
	}, nil
}

func (t *Trainer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run executes the configured number of episodes. An episode is atomic: any
// failure inside one aborts the whole run with the offending episode index,
// and cancellation is only honored between episodes.
func (t *Trainer) Run(ctx context.Context) (RunResult, error) {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return RunResult{}, fmt.Errorf("trainer is already running")
	}
	t.state = StateRunning
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.state = StateIdle
		t.mu.Unlock()
	}()

	runID := t.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	stream, err := episode.NewStream(t.cfg.Pool, t.cfg.Params, t.cfg.Seed)
	if err != nil {
		return RunResult{}, err
	}

	if t.cfg.Store != nil {
		record := model.RunRecord{
			VersionedRecord: model.VersionedRecord{
				SchemaVersion: storage.CurrentSchemaVersion,
				CodecVersion:  storage.CurrentCodecVersion,
			},
			ID:           runID,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
			NWay:         t.cfg.Params.NWay,
			KShot:        t.cfg.Params.KShot,
			KQuery:       t.cfg.Params.KQuery,
			Episodes:     t.cfg.Episodes,
			LearningRate: t.cfg.LearningRate,
			Metric:       t.classifier.Metric().Name(),
			Seed:         t.cfg.Seed,
		}
		if err := t.cfg.Store.SaveRun(ctx, record); err != nil {
			return RunResult{}, fmt.Errorf("save run %s: %w", runID, err)
		}
	}

	history := make([]model.EpisodeMetrics, 0, t.cfg.Episodes)
	for index := 1; index <= t.cfg.Episodes; index++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		metrics, err := t.runEpisode(ctx, stream, index)
		if err != nil {
			return RunResult{}, fmt.Errorf("episode %d: %w", index, err)
		}
		history = append(history, metrics)
		if t.cfg.Observer != nil {
			t.cfg.Observer.ObserveEpisode(metrics)
		}
	}

	if t.cfg.Store != nil {
		if err := t.cfg.Store.SaveTrainingHistory(ctx, runID, history); err != nil {
			return RunResult{}, fmt.Errorf("save training history %s: %w", runID, err)
		}
	}

	return RunResult{RunID: runID, History: history}, nil
}

func (t *Trainer) runEpisode(ctx context.Context, stream *episode.Stream, index int) (model.EpisodeMetrics, error) {
	task, err := stream.Next()
	if err != nil {
		return model.EpisodeMetrics{}, err
	}

	// One batched embedding call covers support and query, class-major
	// support first.
	batch := make([][]float64, 0, task.NWay*task.KShot+len(task.Query))
	for _, group := range task.Support {
		batch = append(batch, group...)
	}
	truth := make([]int, len(task.Query))
	for i, q := range task.Query {
		batch = append(batch, q.Input)
		truth[i] = q.Class
	}

	embeddings, err := t.cfg.Model.Embed(ctx, batch)
	if err != nil {
		return model.EpisodeMetrics{}, fmt.Errorf("embed: %w", err)
	}
	if len(embeddings) != len(batch) {
		return model.EpisodeMetrics{}, fmt.Errorf("embed returned %d vectors for %d inputs", len(embeddings), len(batch))
	}

	supportEmbeddings := make([][][]float64, task.NWay)
	offset := 0
	for class := range task.Support {
		supportEmbeddings[class] = embeddings[offset : offset+task.KShot]
		offset += task.KShot
	}
	queryEmbeddings := embeddings[offset:]

	prototypes, err := protonet.Prototypes(supportEmbeddings)
	if err != nil {
		return model.EpisodeMetrics{}, err
	}
	result, err := t.classifier.Classify(prototypes, queryEmbeddings)
	if err != nil {
		return model.EpisodeMetrics{}, err
	}
	loss, err := protonet.Loss(result, truth)
	if err != nil {
		return model.EpisodeMetrics{}, err
	}
	accuracy, err := protonet.Accuracy(result, truth)
	if err != nil {
		return model.EpisodeMetrics{}, err
	}

	queryGrads, protoGrads, err := t.classifier.Backward(prototypes, queryEmbeddings, result, truth)
	if err != nil {
		return model.EpisodeMetrics{}, err
	}

	// The gradient of each support embedding is its class's prototype
	// gradient split evenly across the class's support members.
	outputs := make([][]float64, 0, len(batch))
	for class := range task.Support {
		shared := make([]float64, len(protoGrads[class]))
		for d, g := range protoGrads[class] {
			shared[d] = g / float64(task.KShot)
		}
		for range task.Support[class] {
			outputs = append(outputs, shared)
		}
	}
	outputs = append(outputs, queryGrads...)

	if err := t.cfg.Model.Step(embed.Gradient{Inputs: batch, Outputs: outputs}); err != nil {
		return model.EpisodeMetrics{}, fmt.Errorf("step: %w", err)
	}

	return model.EpisodeMetrics{Episode: index, Loss: loss, Accuracy: accuracy}, nil
}
