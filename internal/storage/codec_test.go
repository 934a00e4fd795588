package storage

import (
	"errors"
	"testing"

	"hypersched/internal/model"
)

func TestDecodeRunRejectsVersionMismatch(t *testing.T) {
	data, err := EncodeRun(model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion},
		ID:              "run-1",
	})
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got=%v", err)
	}
}

func TestDecodeParamChangesRoundTrip(t *testing.T) {
	input := []model.ParamChange{
		{VersionedRecord: CurrentVersion(), Epoch: 0, Param: "learning_rate", Value: 0.1},
		{VersionedRecord: CurrentVersion(), Epoch: 30, Param: "learning_rate", Value: 0.01},
	}
	data, err := EncodeParamChanges(input)
	if err != nil {
		t.Fatalf("encode changes: %v", err)
	}
	output, err := DecodeParamChanges(data)
	if err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if len(output) != 2 || output[1].Value != 0.01 {
		t.Fatalf("unexpected decoded changes: %+v", output)
	}
}

func TestDecodeParamChangesRejectsUnversioned(t *testing.T) {
	if _, err := DecodeParamChanges([]byte(`[{"epoch":1,"param":"lr","value":0.1}]`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got=%v", err)
	}
}
