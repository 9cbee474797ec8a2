package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nengo-mpi/nmpi/sim/schedule"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

type programRecord struct {
	SchemaVersion int               `json:"schema_version"`
	CodecVersion  int               `json:"codec_version"`
	Program       *schedule.Program `json:"program"`
}

// EncodeProgram serializes a program with the current versions.
func EncodeProgram(p *schedule.Program) ([]byte, error) {
	return json.Marshal(programRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
		Program:       p,
	})
}

// DecodeProgram parses a program written by EncodeProgram.
func DecodeProgram(data []byte) (*schedule.Program, error) {
	var rec programRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if err := checkVersion(rec.SchemaVersion, rec.CodecVersion); err != nil {
		return nil, err
	}
	if rec.Program == nil {
		return nil, errors.New("record has no program")
	}
	return rec.Program, nil
}

func checkVersion(schema, codec int) error {
	if schema != CurrentSchemaVersion || codec != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, schema, codec)
	}
	return nil
}
