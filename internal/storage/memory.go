package storage

import (
	"context"
	"sort"
	"sync"

	"protonet/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]model.EpisodeMetrics
	reports     map[string]model.EvaluationReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]model.EpisodeMetrics)
	s.reports = make(map[string]model.EvaluationReport)
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	return s.Init(ctx)
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out, nil
}

func (s *MemoryStore) SaveTrainingHistory(_ context.Context, runID string, history []model.EpisodeMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]model.EpisodeMetrics(nil), history...)
	return nil
}

func (s *MemoryStore) GetTrainingHistory(_ context.Context, runID string) ([]model.EpisodeMetrics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.EpisodeMetrics(nil), history...), true, nil
}

func (s *MemoryStore) SaveEvaluationReport(_ context.Context, report model.EvaluationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[report.RunID] = report
	return nil
}

func (s *MemoryStore) GetEvaluationReport(_ context.Context, runID string) (model.EvaluationReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[runID]
	return report, ok, nil
}
