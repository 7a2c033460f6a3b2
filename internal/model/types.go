package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Example is one labeled raw input from the pool.
type Example struct {
	Input []float64 `json:"input"`
	Label string    `json:"label"`
}

type RunRecord struct {
	VersionedRecord
	ID           string  `json:"id"`
	CreatedAt    string  `json:"created_at_utc"`
	NWay         int     `json:"n_way"`
	KShot        int     `json:"k_shot"`
	KQuery       int     `json:"k_query"`
	Episodes     int     `json:"episodes"`
	LearningRate float64 `json:"learning_rate"`
	Metric       string  `json:"metric"`
	Seed         int64   `json:"seed"`
}

// EpisodeMetrics is the per-episode training signal emitted to observers
// and appended to a run's history.
type EpisodeMetrics struct {
	Episode  int     `json:"episode"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// EvaluationReport aggregates frozen-parameter episodic evaluation.
// The confidence interval is the 95% half-width around the mean accuracy.
type EvaluationReport struct {
	VersionedRecord
	RunID              string    `json:"run_id"`
	GeneratedAt        string    `json:"generated_at_utc"`
	NWay               int       `json:"n_way"`
	KShot              int       `json:"k_shot"`
	KQuery             int       `json:"k_query"`
	Episodes           int       `json:"episodes"`
	Seed               int64     `json:"seed"`
	Metric             string    `json:"metric"`
	PerEpisodeAccuracy []float64 `json:"per_episode_accuracy"`
	MeanAccuracy       float64   `json:"mean_accuracy"`
	ConfidenceInterval float64   `json:"confidence_interval"`
}
