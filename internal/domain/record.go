// Package domain defines the core interfaces and types for Kestrel.
package domain

// ObjectType identifies which CRM object a record or rule targets.
type ObjectType string

const (
	ObjectAccount     ObjectType = "Account"
	ObjectOpportunity ObjectType = "Opportunity"
)

// Valid reports whether the object type is one Kestrel scores.
func (o ObjectType) Valid() bool {
	return o == ObjectAccount || o == ObjectOpportunity
}

// Record is a flat CRM record as delivered by the field-sync layer.
// Values are string, float64, bool, or nil (JSON scalar types); nested
// objects are flattened upstream before they reach the engines.
type Record map[string]any

// Get returns the value for a field and whether the field is present.
// A field present with a nil value is reported as absent, matching how
// sparse CRM exports surface cleared fields.
func (r Record) Get(field string) (any, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Clone returns a shallow copy. Derived-field mapping mutates its input,
// so callers that share records across evaluations clone first.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
