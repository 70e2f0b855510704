package work

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"

	"dario.cat/mergo"

	"github.com/Iron-Ham/workchain/internal/errors"
)

// MaxDataBytes is the largest JSON encoding a Data payload may have.
const MaxDataBytes = 10 * 1024

// Data is the key/value payload passed into and out of task bodies.
// Values must be primitives (string, bool, integers, floats) or slices of them.
type Data map[string]any

// Clone returns a shallow copy. Slices are shared, which is safe because
// Data values are never mutated in place by the scheduler.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return maps.Clone(d)
}

// Keys returns the keys in sorted order.
func (d Data) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the string stored under key, or "" if absent or not a string.
func (d Data) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Int returns the integer stored under key. Floats are truncated, which
// covers values that went through a JSON round trip.
func (d Data) Int(key string, def int) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Bool returns the boolean stored under key.
func (d Data) Bool(key string, def bool) bool {
	if b, ok := d[key].(bool); ok {
		return b
	}
	return def
}

// Float returns the float stored under key.
func (d Data) Float(key string, def float64) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// Validate checks that every value is a supported primitive and that the
// encoded payload fits in MaxDataBytes.
func (d Data) Validate() error {
	for _, k := range d.Keys() {
		if !isPrimitive(d[k]) {
			return errors.NewValidationError("unsupported value type").
				WithField(k).
				WithValue(fmt.Sprintf("%T", d[k])).
				WithCause(errors.ErrInvalidData)
		}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode data")
	}
	if len(raw) > MaxDataBytes {
		return errors.NewValidationError(fmt.Sprintf("encoded size %d exceeds %d bytes", len(raw), MaxDataBytes)).
			WithCause(errors.ErrDataTooLarge)
	}
	return nil
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]string, []bool, []int, []int64, []float64:
		return true
	default:
		return false
	}
}

// Merge returns a new Data holding base overlaid with over. Keys present in
// over win. Neither argument is modified.
func Merge(base, over Data) Data {
	out := base.Clone()
	if len(over) == 0 {
		return out
	}
	if err := mergo.Merge(&out, over.Clone(), mergo.WithOverride); err != nil {
		// mergo only fails on mismatched kinds, which two Data maps cannot have.
		maps.Copy(out, over)
	}
	return out
}
