package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"protonet/internal/model"
)

const evaluationsDir = "evaluations"

// WriteEvaluationReport persists a report as a JSON artifact under
// baseDir/evaluations/<run id>_Report.json and returns the written path.
func WriteEvaluationReport(baseDir string, report model.EvaluationReport) (string, error) {
	if report.RunID == "" {
		return "", fmt.Errorf("report run id is required")
	}
	dir := filepath.Join(baseDir, evaluationsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if report.GeneratedAt == "" {
		report.GeneratedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	path := filepath.Join(dir, report.RunID+"_Report.json")
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}

// ReadEvaluationReport loads a previously written report artifact.
func ReadEvaluationReport(baseDir, runID string) (model.EvaluationReport, bool, error) {
	path := filepath.Join(baseDir, evaluationsDir, runID+"_Report.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.EvaluationReport{}, false, nil
		}
		return model.EvaluationReport{}, false, err
	}
	var report model.EvaluationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return model.EvaluationReport{}, false, fmt.Errorf("decode evaluation report %s: %w", runID, err)
	}
	return report, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
