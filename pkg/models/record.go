// Package models provides the record type passed from source adapters to
// batch sinks.
package models

// Record is one opaque value yielded by a source. Its shape is backend
// specific; the engine never inspects it beyond counting.
type Record map[string]interface{}

// NewRecord returns a record with room for n fields.
func NewRecord(n int) Record {
	return make(Record, n)
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
