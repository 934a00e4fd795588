package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one training run driven by a set of setters.
type RunRecord struct {
	VersionedRecord
	ID            string             `json:"id"`
	CreatedAt     time.Time          `json:"created_at"`
	Epochs        int                `json:"epochs"`
	StepsPerEpoch int                `json:"steps_per_epoch"`
	GlobalStep    int64              `json:"global_step"`
	LogDir        string             `json:"log_dir"`
	Setters       []string           `json:"setters"`
	FinalValues   map[string]float64 `json:"final_values"`
}

// ParamChange is emitted whenever a setter applies a value different from
// its previous decision.
type ParamChange struct {
	VersionedRecord
	Epoch      int     `json:"epoch"`
	GlobalStep int64   `json:"global_step"`
	Param      string  `json:"param"`
	Setter     string  `json:"setter"`
	Value      float64 `json:"value"`
}

// StatSeries is a named statistic history as recorded by the monitor.
type StatSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}
