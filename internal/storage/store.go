package storage

import (
	"context"

	"protonet/internal/model"
)

// Store persists run history: run configurations, per-episode training
// metrics and evaluation reports.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveTrainingHistory(ctx context.Context, runID string, history []model.EpisodeMetrics) error
	GetTrainingHistory(ctx context.Context, runID string) ([]model.EpisodeMetrics, bool, error)
	SaveEvaluationReport(ctx context.Context, report model.EvaluationReport) error
	GetEvaluationReport(ctx context.Context, runID string) (model.EvaluationReport, bool, error)
}

// Resetter is implemented by stores that can drop all persisted state.
type Resetter interface {
	Reset(ctx context.Context) error
}
