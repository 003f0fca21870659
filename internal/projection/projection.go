// Package projection restricts serialized entities to a caller-supplied
// allow-list of field names.
package projection

import (
	"fmt"
	"sort"
	"strings"
)

// Record is a fully serialized entity keyed by output field name.
type Record map[string]any

// Schema is the static table of output fields an entity declares.
type Schema struct {
	Entity string
	Fields []string
}

// Has reports whether name is a declared field.
func (s Schema) Has(name string) bool {
	for _, field := range s.Fields {
		if field == name {
			return true
		}
	}
	return false
}

// Validate checks that rec carries exactly the declared fields.
func (s Schema) Validate(rec Record) error {
	for _, field := range s.Fields {
		if _, ok := rec[field]; !ok {
			return fmt.Errorf("%s: missing declared field %q", s.Entity, field)
		}
	}
	if len(rec) != len(s.Fields) {
		var extra []string
		for key := range rec {
			if !s.Has(key) {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("%s: undeclared fields %v", s.Entity, extra)
	}
	return nil
}

// Apply returns the fields of rec named in allowed. A nil allow-list passes
// every field through unchanged. Names rec does not carry are ignored.
func Apply(rec Record, allowed []string) Record {
	if allowed == nil {
		return rec
	}
	shaped := make(Record, len(allowed))
	for _, name := range allowed {
		if value, ok := rec[name]; ok {
			shaped[name] = value
		}
	}
	return shaped
}

// ApplyAll shapes every record in recs.
func ApplyAll(recs []Record, allowed []string) []Record {
	if allowed == nil {
		return recs
	}
	shaped := make([]Record, 0, len(recs))
	for _, rec := range recs {
		shaped = append(shaped, Apply(rec, allowed))
	}
	return shaped
}

// ParseFields turns a `fields=a,b` query value into an allow-list. An empty
// value means no restriction.
func ParseFields(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			fields = append(fields, name)
		}
	}
	return fields
}
