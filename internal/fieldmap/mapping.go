// Package fieldmap translates flat key-value records between the API's camelCase field names
// and the snake_case column names used in storage.
//
// Each entity owns one Mapping. The inverse direction is derived from the forward table when the
// Mapping is built, so the two directions cannot drift apart. Mappings are immutable after
// construction and safe for concurrent use without locking.
//
// Keys that a table does not mention pass through both directions unchanged. The storage layer,
// not this package, decides whether an unmapped key is acceptable.
package fieldmap

import (
	"fmt"
	"sort"
)

// Mapping is a bidirectional field-name table for one entity.
type Mapping struct {
	name    string
	forward map[string]string
	inverse map[string]string
}

// NewMapping builds a Mapping from an external→storage table. It fails when two external names
// map to the same storage name, because the inverse would then be ambiguous.
func NewMapping(name string, forward map[string]string) (*Mapping, error) {
	m := &Mapping{
		name:    name,
		forward: make(map[string]string, len(forward)),
		inverse: make(map[string]string, len(forward)),
	}

	// Iterate in sorted order so the reported collision is deterministic.
	externals := make([]string, 0, len(forward))
	for ext := range forward {
		externals = append(externals, ext)
	}
	sort.Strings(externals)

	for _, ext := range externals {
		stored := forward[ext]
		if ext == "" || stored == "" {
			return nil, fmt.Errorf("fieldmap %s: empty field name in pair %q -> %q", name, ext, stored)
		}
		if prev, dup := m.inverse[stored]; dup {
			return nil, fmt.Errorf("fieldmap %s: %q and %q both map to %q", name, prev, ext, stored)
		}
		m.forward[ext] = stored
		m.inverse[stored] = ext
	}

	return m, nil
}

// MustMapping is NewMapping for package-level tables; it panics on an invalid table.
func MustMapping(name string, forward map[string]string) *Mapping {
	m, err := NewMapping(name, forward)
	if err != nil {
		panic(err)
	}
	return m
}

// Name returns the entity name the mapping was registered under.
func (m *Mapping) Name() string {
	return m.name
}

// Forward returns a copy of the external→storage table.
func (m *Mapping) Forward() map[string]string {
	return copyTable(m.forward)
}

// Inverse returns a copy of the storage→external table.
func (m *Mapping) Inverse() map[string]string {
	return copyTable(m.inverse)
}

// StorageName returns the storage name for an external field, or the field itself when unmapped.
func (m *Mapping) StorageName(external string) string {
	if stored, ok := m.forward[external]; ok {
		return stored
	}
	return external
}

// ExternalName returns the external name for a storage column, or the column itself when unmapped.
func (m *Mapping) ExternalName(stored string) string {
	if ext, ok := m.inverse[stored]; ok {
		return ext
	}
	return stored
}

// ToStorage rewrites an external record into storage naming.
func (m *Mapping) ToStorage(record map[string]any) map[string]any {
	return Transform(record, m.forward)
}

// ToExternal rewrites a storage record into external naming.
func (m *Mapping) ToExternal(record map[string]any) map[string]any {
	return Transform(record, m.inverse)
}

// ToExternalAll applies ToExternal to every record. A nil slice yields an empty, non-nil slice so
// JSON responses render [] rather than null.
func (m *Mapping) ToExternalAll(records []map[string]any) []map[string]any {
	return TransformAll(records, m.inverse)
}

// Transform returns a new record in which every key present in table is renamed to its mapped
// name. Keys missing from table are copied unchanged. The input is never modified, and a nil
// record yields an empty map.
//
// When a record carries both a mapped key and a literal key equal to its target name, the mapped
// key wins.
func Transform(record map[string]any, table map[string]string) map[string]any {
	out := make(map[string]any, len(record))
	for key, value := range record {
		if _, ok := table[key]; !ok {
			out[key] = value
		}
	}
	for key, value := range record {
		if renamed, ok := table[key]; ok {
			out[renamed] = value
		}
	}
	return out
}

// TransformAll applies Transform to each record.
func TransformAll(records []map[string]any, table map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, Transform(r, table))
	}
	return out
}

func copyTable(t map[string]string) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
