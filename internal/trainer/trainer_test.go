package trainer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"protonet/internal/config"
	"protonet/internal/embed"
	"protonet/internal/episode"
	"protonet/internal/model"
	"protonet/internal/pool"
	"protonet/internal/stats"
	"protonet/internal/storage"
)

// labelValuePool builds a pool whose raw input is numerically equal to its
// label, so identity embeddings are trivially separable.
func labelValuePool(t *testing.T, labels, perLabel int) *pool.Pool {
	t.Helper()
	examples := make([]model.Example, 0, labels*perLabel)
	for l := 0; l < labels; l++ {
		for i := 0; i < perLabel; i++ {
			examples = append(examples, model.Example{
				Input: []float64{float64(l)},
				Label: fmt.Sprintf("label-%d", l),
			})
		}
	}
	p, err := pool.New(examples)
	if err != nil {
		t.Fatalf("build pool: %v", err)
	}
	return p
}

// countingModel wraps another model and counts embed and step calls.
type countingModel struct {
	inner      embed.Model
	embedCalls int
	stepCalls  int
}

func (m *countingModel) Embed(ctx context.Context, batch [][]float64) ([][]float64, error) {
	m.embedCalls++
	return m.inner.Embed(ctx, batch)
}

func (m *countingModel) Parameters() embed.Parameters { return m.inner.Parameters() }

func (m *countingModel) Step(grad embed.Gradient) error {
	m.stepCalls++
	return m.inner.Step(grad)
}

func newIdentity(t *testing.T, dim int) *embed.Identity {
	t.Helper()
	m, err := embed.NewIdentity(dim)
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	return m
}

func TestRunEmitsOneMetricPerEpisode(t *testing.T) {
	p := labelValuePool(t, 5, 20)
	var observed []model.EpisodeMetrics

	tr, err := New(Config{
		Pool:     p,
		Model:    newIdentity(t, 1),
		Params:   episode.Params{NWay: 5, KShot: 5, KQuery: 5},
		Episodes: 4,
		Seed:     3,
		Observer: ObserverFunc(func(m model.EpisodeMetrics) {
			observed = append(observed, m)
		}),
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	result, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("run id was not minted")
	}
	if len(result.History) != 4 || len(observed) != 4 {
		t.Fatalf("episode counts: history=%d observed=%d want=4", len(result.History), len(observed))
	}
	for i, m := range observed {
		if m.Episode != i+1 {
			t.Fatalf("episode index at %d: got=%d want=%d", i, m.Episode, i+1)
		}
	}
}

func TestRunSeparablePoolIsAccurateUntrained(t *testing.T) {
	p := labelValuePool(t, 5, 20)
	tr, err := New(Config{
		Pool:     p,
		Model:    newIdentity(t, 1),
		Params:   episode.Params{NWay: 5, KShot: 5, KQuery: 5},
		Episodes: 10,
		Seed:     1,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	result, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, m := range result.History {
		if m.Accuracy != 1 {
			t.Fatalf("episode %d: identity embedding on separable pool gave accuracy %f", m.Episode, m.Accuracy)
		}
	}
}

func TestRunLearnsOnClusteredPool(t *testing.T) {
	p, err := pool.Clustered(5, 30, 4, 0.2, 11)
	if err != nil {
		t.Fatalf("clustered pool: %v", err)
	}
	linear, err := embed.NewLinear(4, 4, 0.05, 2)
	if err != nil {
		t.Fatalf("new linear: %v", err)
	}
	tr, err := New(Config{
		Pool:     p,
		Model:    linear,
		Params:   episode.Params{NWay: 3, KShot: 3, KQuery: 3},
		Episodes: 100,
		Seed:     5,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	result, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	first := make([]float64, 0, 10)
	last := make([]float64, 0, 10)
	for _, m := range result.History[:10] {
		first = append(first, m.Loss)
	}
	for _, m := range result.History[len(result.History)-10:] {
		last = append(last, m.Loss)
	}
	firstMean, err := stats.Mean(first)
	if err != nil {
		t.Fatalf("mean: %v", err)
	}
	lastMean, err := stats.Mean(last)
	if err != nil {
		t.Fatalf("mean: %v", err)
	}
	if lastMean >= firstMean {
		t.Fatalf("loss did not decrease: first=%f last=%f", firstMean, lastMean)
	}
}

func TestRunAbortsOnInsufficientData(t *testing.T) {
	p := labelValuePool(t, 5, 20)
	counting := &countingModel{inner: newIdentity(t, 1)}

	tr, err := New(Config{
		Pool:     p,
		Model:    counting,
		Params:   episode.Params{NWay: 5, KShot: 15, KQuery: 10},
		Episodes: 3,
		Seed:     1,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	_, err = tr.Run(context.Background())
	var insufficient *episode.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	// The failing episode index is part of the report.
	if got := err.Error(); !strings.HasPrefix(got, "episode 1") {
		t.Fatalf("error does not name the episode: %q", got)
	}
	if counting.embedCalls != 0 {
		t.Fatalf("embed was called %d times before the sampling failure", counting.embedCalls)
	}
	if counting.stepCalls != 0 {
		t.Fatalf("step was called %d times in an aborted run", counting.stepCalls)
	}
}

func TestRunHonorsCancellationBetweenEpisodes(t *testing.T) {
	p := labelValuePool(t, 5, 20)
	ctx, cancel := context.WithCancel(context.Background())

	episodes := 0
	tr, err := New(Config{
		Pool:     p,
		Model:    newIdentity(t, 1),
		Params:   episode.Params{NWay: 5, KShot: 2, KQuery: 2},
		Episodes: 50,
		Seed:     1,
		Observer: ObserverFunc(func(model.EpisodeMetrics) {
			episodes++
			if episodes == 3 {
				cancel()
			}
		}),
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	_, err = tr.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// The in-flight episode completed before the cancellation was seen.
	if episodes != 3 {
		t.Fatalf("unexpected completed episodes: got=%d want=3", episodes)
	}
}

func TestRunPersistsRunAndHistory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}

	p := labelValuePool(t, 5, 20)
	tr, err := New(Config{
		Pool:         p,
		Model:        newIdentity(t, 1),
		Params:       episode.Params{NWay: 3, KShot: 2, KQuery: 2},
		Episodes:     5,
		Seed:         9,
		RunID:        "run-under-test",
		LearningRate: 0.01,
		Store:        store,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := tr.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	run, ok, err := store.GetRun(ctx, "run-under-test")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if run.NWay != 3 || run.Seed != 9 || run.Metric != "squared_euclidean" {
		t.Fatalf("unexpected run record: %+v", run)
	}

	history, ok, err := store.GetTrainingHistory(ctx, "run-under-test")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if len(history) != 5 {
		t.Fatalf("history length: got=%d want=5", len(history))
	}
}

func TestRunRejectsReentry(t *testing.T) {
	p := labelValuePool(t, 5, 20)

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := &blockingModel{inner: newIdentity(t, 1), started: started, release: release}

	tr, err := New(Config{
		Pool:     p,
		Model:    blocking,
		Params:   episode.Params{NWay: 2, KShot: 1, KQuery: 1},
		Episodes: 1,
		Seed:     1,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := tr.Run(context.Background())
		done <- err
	}()

	<-started
	if got := tr.State(); got != StateRunning {
		t.Fatalf("state during run: got=%s want=%s", got, StateRunning)
	}
	if _, err := tr.Run(context.Background()); err == nil {
		t.Fatal("expected re-entry error")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if got := tr.State(); got != StateIdle {
		t.Fatalf("state after run: got=%s want=%s", got, StateIdle)
	}
}

type blockingModel struct {
	inner    embed.Model
	started  chan struct{}
	release  chan struct{}
	signaled bool
}

func (m *blockingModel) Embed(ctx context.Context, batch [][]float64) ([][]float64, error) {
	if !m.signaled {
		m.signaled = true
		close(m.started)
		<-m.release
	}
	return m.inner.Embed(ctx, batch)
}

func (m *blockingModel) Parameters() embed.Parameters { return m.inner.Parameters() }

func (m *blockingModel) Step(grad embed.Gradient) error { return m.inner.Step(grad) }

func TestNewValidation(t *testing.T) {
	p := labelValuePool(t, 3, 10)
	identity := newIdentity(t, 1)
	valid := episode.Params{NWay: 2, KShot: 1, KQuery: 1}

	cases := []struct {
		name  string
		cfg   Config
		typed bool
	}{
		{name: "missing pool", cfg: Config{Model: identity, Params: valid, Episodes: 1}},
		{name: "missing model", cfg: Config{Pool: p, Params: valid, Episodes: 1}},
		{name: "bad params", cfg: Config{Pool: p, Model: identity, Params: episode.Params{NWay: 1, KShot: 1, KQuery: 1}, Episodes: 1}, typed: true},
		{name: "negative episodes", cfg: Config{Pool: p, Model: identity, Params: valid, Episodes: -1}},
		{name: "too many ways", cfg: Config{Pool: p, Model: identity, Params: episode.Params{NWay: 4, KShot: 1, KQuery: 1}, Episodes: 1}, typed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			if err == nil {
				t.Fatal("expected constructor error")
			}
			var configErr *config.ConfigError
			if tc.typed && !errors.As(err, &configErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}
