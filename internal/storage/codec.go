package storage

import (
	"encoding/json"
	"errors"

	"gentasche/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned stamps the current schema and codec versions.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.Run) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func EncodeAssignment(a model.Assignment) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeAssignment(data []byte) (model.Assignment, error) {
	var assignment model.Assignment
	if err := json.Unmarshal(data, &assignment); err != nil {
		return model.Assignment{}, err
	}
	if err := checkVersion(assignment.VersionedRecord); err != nil {
		return model.Assignment{}, err
	}
	return assignment, nil
}

func EncodeStatistics(stats []model.GenerationStats) ([]byte, error) {
	return json.Marshal(stats)
}

func DecodeStatistics(data []byte) ([]model.GenerationStats, error) {
	var stats []model.GenerationStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
