package storage

import (
	"encoding/json"
	"errors"

	"hypersched/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion returns the version stamp new records are written with.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

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

func EncodeParamChanges(changes []model.ParamChange) ([]byte, error) {
	return json.Marshal(changes)
}

func DecodeParamChanges(data []byte) ([]model.ParamChange, error) {
	var changes []model.ParamChange
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, err
	}
	for _, change := range changes {
		if err := checkVersion(change.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

func EncodeStatHistory(series []model.StatSeries) ([]byte, error) {
	return json.Marshal(series)
}

func DecodeStatHistory(data []byte) ([]model.StatSeries, error) {
	var series []model.StatSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, err
	}
	return series, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func cloneSeries(series []model.StatSeries) []model.StatSeries {
	if series == nil {
		return nil
	}
	out := make([]model.StatSeries, len(series))
	for i, s := range series {
		out[i] = model.StatSeries{Name: s.Name, Values: append([]float64(nil), s.Values...)}
	}
	return out
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Setters = append([]string(nil), run.Setters...)
	if run.FinalValues != nil {
		values := make(map[string]float64, len(run.FinalValues))
		for k, v := range run.FinalValues {
			values[k] = v
		}
		run.FinalValues = values
	}
	return run
}
