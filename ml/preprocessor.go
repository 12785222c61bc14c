package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// NumericImputer fills missing values of one numeric column with the
// training-set median.
type NumericImputer struct {
	Column string  `json:"column"`
	Index  int     `json:"index"`
	Median float64 `json:"median"`
}

// CategoricalEncoder fills missing values of one categorical column with the
// most frequent training value, then expands it into one indicator per known
// category. Unknown categories encode as an all-zero block.
type CategoricalEncoder struct {
	Column       string   `json:"column"`
	Index        int      `json:"index"`
	MostFrequent string   `json:"most_frequent"`
	Categories   []string `json:"categories"`

	offset int
	lookup map[string]int
}

// Preprocessor is the column-wise transform: categorical blocks first, then
// numeric columns, each in schema order. It is frozen after Fit.
type Preprocessor struct {
	Features    FeatureSchema        `json:"features"`
	Categorical []CategoricalEncoder `json:"categorical"`
	Numeric     []NumericImputer     `json:"numeric"`

	width  int
	fitted bool
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{}
}

// Fit learns medians for numeric columns and the most frequent value and
// sorted vocabulary for categorical ones.
func (p *Preprocessor) Fit(frame *Frame) error {
	if frame == nil || frame.Len() == 0 {
		return errors.New("frame is empty")
	}
	schema := NewFeatureSchema(frame.Columns)
	var categorical []CategoricalEncoder
	var numeric []NumericImputer
	for idx, col := range frame.Columns {
		switch col.Kind {
		case Numeric:
			values := make([]float64, 0, frame.Len())
			for _, row := range frame.Rows {
				if row[idx].IsMissing() {
					continue
				}
				v, err := row[idx].Float()
				if err != nil {
					return fmt.Errorf("column %s: %w", col.Name, err)
				}
				values = append(values, v)
			}
			numeric = append(numeric, NumericImputer{Column: col.Name, Index: idx, Median: median(values)})
		case Categorical:
			counts := make(map[string]int)
			for _, row := range frame.Rows {
				if row[idx].IsMissing() {
					continue
				}
				counts[row[idx].String()]++
			}
			categorical = append(categorical, CategoricalEncoder{
				Column:       col.Name,
				Index:        idx,
				MostFrequent: mostFrequent(counts),
				Categories:   sortedKeys(counts),
			})
		default:
			return fmt.Errorf("column %s: unsupported kind %v", col.Name, col.Kind)
		}
	}

	p.Features = schema
	p.Categorical = categorical
	p.Numeric = numeric
	return p.build()
}

// build derives lookup tables; it runs after Fit and after decoding.
func (p *Preprocessor) build() error {
	if err := p.Features.Validate(); err != nil {
		return err
	}
	offset := 0
	for i := range p.Categorical {
		enc := &p.Categorical[i]
		if err := p.checkColumn(enc.Column, enc.Index, Categorical); err != nil {
			return err
		}
		enc.offset = offset
		enc.lookup = make(map[string]int, len(enc.Categories))
		for j, c := range enc.Categories {
			enc.lookup[c] = j
		}
		offset += len(enc.Categories)
	}
	for _, imp := range p.Numeric {
		if err := p.checkColumn(imp.Column, imp.Index, Numeric); err != nil {
			return err
		}
	}
	if len(p.Categorical)+len(p.Numeric) != p.Features.Len() {
		return fmt.Errorf("%w: %d transformed columns for %d schema columns",
			ErrArtifactSchema, len(p.Categorical)+len(p.Numeric), p.Features.Len())
	}
	p.width = offset + len(p.Numeric)
	if p.width == 0 {
		return errors.New("preprocessor produces no output columns")
	}
	p.fitted = true
	return nil
}

func (p *Preprocessor) checkColumn(name string, idx int, kind ColumnKind) error {
	if idx < 0 || idx >= p.Features.Len() {
		return fmt.Errorf("%w: column %q index %d out of range", ErrArtifactSchema, name, idx)
	}
	col := p.Features.Columns[idx]
	if col.Name != name || col.Kind != kind {
		return fmt.Errorf("%w: column %q does not match schema entry %q (%v)", ErrArtifactSchema, name, col.Name, col.Kind)
	}
	return nil
}

func (p *Preprocessor) UnmarshalJSON(data []byte) error {
	type state Preprocessor
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = Preprocessor(s)
	return p.build()
}

func (p *Preprocessor) Schema() FeatureSchema { return p.Features }

// Width is the number of output columns.
func (p *Preprocessor) Width() int { return p.width }

// OutputNames lists the transformed columns: one indicator per category,
// then the numerics.
func (p *Preprocessor) OutputNames() []string {
	names := make([]string, 0, p.width)
	for _, enc := range p.Categorical {
		for _, c := range enc.Categories {
			names = append(names, enc.Column+"="+c)
		}
	}
	for _, imp := range p.Numeric {
		names = append(names, imp.Column)
	}
	return names
}

// Transform encodes a frame whose columns equal the fitted schema.
func (p *Preprocessor) Transform(frame *Frame) (*mat.Dense, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	if frame == nil || frame.Len() == 0 {
		return nil, errors.New("frame is empty")
	}
	if !NewFeatureSchema(frame.Columns).Equal(p.Features) {
		if err := p.Features.CheckColumns(frame.Names()); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: column kinds differ from the fitted schema", ErrSchemaMismatch)
	}
	out := mat.NewDense(frame.Len(), p.width, nil)
	for i, row := range frame.Rows {
		if err := p.encode(row, out.RawRowView(i)); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}

func (p *Preprocessor) encode(row []Value, dst []float64) error {
	if len(row) != p.Features.Len() {
		return fmt.Errorf("%w: row has %d values for %d columns", ErrSchemaMismatch, len(row), p.Features.Len())
	}
	for _, enc := range p.Categorical {
		v := row[enc.Index]
		category := enc.MostFrequent
		if !v.IsMissing() {
			category = v.String()
		}
		if j, ok := enc.lookup[category]; ok {
			dst[enc.offset+j] = 1
		}
	}
	base := p.width - len(p.Numeric)
	for k, imp := range p.Numeric {
		v := row[imp.Index]
		if v.IsMissing() {
			dst[base+k] = imp.Median
			continue
		}
		f, err := v.Float()
		if err != nil {
			return fmt.Errorf("column %s: %w", imp.Column, err)
		}
		dst[base+k] = f
	}
	return nil
}

// Statistics returns the frozen imputation values keyed by column.
func (p *Preprocessor) Statistics() map[string]string {
	stats := make(map[string]string, p.Features.Len())
	for _, enc := range p.Categorical {
		stats[enc.Column] = enc.MostFrequent
	}
	for _, imp := range p.Numeric {
		stats[imp.Column] = Number(imp.Median).String()
	}
	return stats
}

// median of an all-missing column is 0: a constant column never splits, which
// matches dropping it.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// mostFrequent breaks ties by the smallest value.
func mostFrequent(counts map[string]int) string {
	best := ""
	bestCount := -1
	for _, key := range sortedKeys(counts) {
		if counts[key] > bestCount {
			best = key
			bestCount = counts[key]
		}
	}
	return best
}

func sortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
