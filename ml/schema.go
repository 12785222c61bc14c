package ml

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// SchemaVersion is the layout version of FeatureSchema inside an artifact.
const SchemaVersion = 1

// FeatureSchema is the ordered set of columns the preprocessor was fit on.
// Training and inference both treat it as authoritative.
type FeatureSchema struct {
	Version     int      `json:"version"`
	Columns     []Column `json:"columns"`
	Fingerprint string   `json:"fingerprint"`
}

// NewFeatureSchema copies columns and stamps the schema version and fingerprint.
func NewFeatureSchema(columns []Column) FeatureSchema {
	cols := append([]Column(nil), columns...)
	return FeatureSchema{
		Version:     SchemaVersion,
		Columns:     cols,
		Fingerprint: fingerprint(cols),
	}
}

func fingerprint(columns []Column) string {
	h := xxhash.New()
	for _, c := range columns {
		_, _ = h.WriteString(c.Name)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(c.Kind.String())
		_, _ = h.WriteString("\x00")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (s FeatureSchema) Len() int { return len(s.Columns) }

// Names returns the column names in schema order.
func (s FeatureSchema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Lookup finds a column by name.
func (s FeatureSchema) Lookup(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Equal reports whether both schemas describe the same columns in the same order.
func (s FeatureSchema) Equal(other FeatureSchema) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Validate checks the version and column names and recomputes the
// fingerprint.
func (s FeatureSchema) Validate() error {
	if s.Version != SchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", ErrArtifactSchema, s.Version)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrArtifactSchema)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: empty column name", ErrArtifactSchema)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrArtifactSchema, c.Name)
		}
		seen[c.Name] = true
	}
	if s.Fingerprint != fingerprint(s.Columns) {
		return fmt.Errorf("%w: fingerprint %s does not match columns", ErrArtifactSchema, s.Fingerprint)
	}
	return nil
}

// CheckColumns verifies that names are exactly the schema columns, in order.
func (s FeatureSchema) CheckColumns(names []string) error {
	want := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		want[c.Name] = i
	}
	got := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := want[n]; !ok {
			return fmt.Errorf("%w: unexpected column %q", ErrSchemaMismatch, n)
		}
		if got[n] {
			return fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, n)
		}
		got[n] = true
	}
	for _, c := range s.Columns {
		if !got[c.Name] {
			return fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, c.Name)
		}
	}
	for i, n := range names {
		if want[n] != i {
			return fmt.Errorf("%w: column %q at position %d, expected %d", ErrSchemaMismatch, n, i, want[n])
		}
	}
	return nil
}
