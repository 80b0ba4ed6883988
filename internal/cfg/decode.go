package cfg

import (
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// The unit file is a msgpack encoding of the CompUnit tree. The producer
// is the compiler's own pickler, so malformed input is terminal: decode
// errors propagate without recovery.

// Decode reads a compilation unit from r.
func Decode(r io.Reader) (*CompUnit, error) {
	dec := msgpack.NewDecoder(r)
	var unit CompUnit
	if err := dec.Decode(&unit); err != nil {
		return nil, fmt.Errorf("cfg: decode compilation unit: %w", err)
	}
	if unit.Entry == nil {
		return nil, fmt.Errorf("cfg: unit has no entry cluster")
	}
	if err := unit.Validate(); err != nil {
		return nil, err
	}
	return &unit, nil
}

// DecodeFile reads a compilation unit from the named file.
func DecodeFile(path string) (*CompUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cfg: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes the unit to w. The driver does not use this; it exists
// for building unit fixtures in tests and tools.
func Encode(w io.Writer, unit *CompUnit) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(unit); err != nil {
		return fmt.Errorf("cfg: encode compilation unit: %w", err)
	}
	return nil
}
