package value

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/iambrandonn/jac/errs"
)

// Field is one (name, value) pair within a Record, in the order the source
// presented it.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered sequence of fields: a mapping from field name to
// value where insertion order is preserved so the encoder's
// first-observation field ordering is deterministic regardless of Go's
// randomized map iteration. Field names must be non-empty; duplicate names
// within one record are not rejected here (the last one wins at decode,
// mirroring how a JSON object with duplicate keys collapses), but callers
// should avoid producing them.
type Record []Field

// Get returns the value for name and whether it was present.
func (r Record) Get(name string) (Value, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Name == name {
			return r[i].Value, true
		}
	}

	return Value{}, false
}

// ToJSON renders r as a JSON object, preserving field order exactly (unlike
// marshaling a Go map, which would sort or randomize keys).
func (r Record) ToJSON() (json.RawMessage, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(f.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrJson, err)
		}

		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := f.Value.ToJSON()
		if err != nil {
			return nil, err
		}

		buf.Write(valJSON)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}
