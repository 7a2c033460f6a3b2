package storage

import (
	"encoding/json"
	"errors"

	"protonet/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeTrainingHistory(history []model.EpisodeMetrics) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeTrainingHistory(data []byte) ([]model.EpisodeMetrics, error) {
	var history []model.EpisodeMetrics
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeEvaluationReport(r model.EvaluationReport) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeEvaluationReport(data []byte) (model.EvaluationReport, error) {
	var report model.EvaluationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return model.EvaluationReport{}, err
	}
	if err := checkVersion(report.VersionedRecord); err != nil {
		return model.EvaluationReport{}, err
	}
	return report, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
