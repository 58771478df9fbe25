package coldb

import (
	"fmt"
	"strings"

	"github.com/submergedb/coldb/errors"
)

const (
	// ChunkRows is the number of rows in every chunk but the last of a track.
	ChunkRows = 256
	// MaxTrackRows is the most rows one track, and so one block, can hold.
	MaxTrackRows = 0xffff
	// MaxTracks is the most tracks one block can hold.
	MaxTracks = 255
)

// LogicalType is the type of the values in a column.
type LogicalType uint8

const (
	Bit LogicalType = iota
	Int
	Flo
	Bin
)

var logicalTypeNames = [...]string{"bit", "int", "flo", "bin"}

func (t LogicalType) String() string {
	if int(t) < len(logicalTypeNames) {
		return logicalTypeNames[t]
	}
	return fmt.Sprintf("LogicalType(%d)", uint8(t))
}

func (t LogicalType) MarshalText() ([]byte, error) {
	if int(t) >= len(logicalTypeNames) {
		return nil, errors.Newf(errors.ErrCorrupt, "unknown logical type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *LogicalType) UnmarshalText(p []byte) error {
	name := strings.ToLower(string(p))
	for i, n := range logicalTypeNames {
		if n == name {
			*t = LogicalType(i)
			return nil
		}
	}
	return errors.Newf(errors.ErrCorrupt, "unknown logical type %q", p)
}

func logicalTypeFromByte(b uint8) (LogicalType, error) {
	if int(b) >= len(logicalTypeNames) {
		return 0, errors.Newf(errors.ErrCorrupt, "unknown logical type %d", b)
	}
	return LogicalType(b), nil
}

// Column is one entry of a layer's column catalogue.
type Column struct {
	Label string      `json:"label"`
	Type  LogicalType `json:"type"`
	// Role is free-form: "key", "value", a unit name.
	Role string `json:"role,omitempty"`
}
