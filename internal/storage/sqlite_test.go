//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"protonet/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "protonet.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "run-1",
		CreatedAt:       "2026-08-30T00:00:00Z",
		NWay:            5,
		KShot:           1,
		KQuery:          5,
		Episodes:        50,
		LearningRate:    0.05,
		Metric:          "euclidean",
		Seed:            13,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	loaded, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if loaded.Metric != "euclidean" || loaded.Episodes != 50 {
		t.Fatalf("run round trip mismatch: %+v", loaded)
	}

	history := []model.EpisodeMetrics{
		{Episode: 1, Loss: 1.6, Accuracy: 0.2},
		{Episode: 2, Loss: 1.2, Accuracy: 0.6},
	}
	if err := store.SaveTrainingHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	loadedHistory, ok, err := store.GetTrainingHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if len(loadedHistory) != 2 || loadedHistory[1].Accuracy != 0.6 {
		t.Fatalf("history round trip mismatch: %+v", loadedHistory)
	}

	report := model.EvaluationReport{
		VersionedRecord:    model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:              "run-1",
		Episodes:           20,
		MeanAccuracy:       0.91,
		ConfidenceInterval: 0.03,
		PerEpisodeAccuracy: []float64{0.9, 0.92},
	}
	if err := store.SaveEvaluationReport(ctx, report); err != nil {
		t.Fatalf("save report: %v", err)
	}
	loadedReport, ok, err := store.GetEvaluationReport(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get report: ok=%v err=%v", ok, err)
	}
	if loadedReport.MeanAccuracy != 0.91 {
		t.Fatalf("report round trip mismatch: %+v", loadedReport)
	}
}

func TestSQLiteStoreListAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "protonet.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	for _, run := range []model.RunRecord{
		{VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}, ID: "b", CreatedAt: "2026-08-30T02:00:00Z"},
		{VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}, ID: "a", CreatedAt: "2026-08-30T01:00:00Z"},
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a" || runs[1].ID != "b" {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err = store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs after reset: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("runs survived reset: %+v", runs)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "protonet.db"))
	if _, _, err := store.GetRun(context.Background(), "run-1"); err == nil {
		t.Fatal("expected uninitialized store error")
	}

	empty := NewSQLiteStore("")
	if err := empty.Init(context.Background()); err == nil {
		t.Fatal("expected path required error")
	}
}
