package ml

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ColumnKind is the storage type of a feature column. It decides which
// preprocessing transform applies to the column.
type ColumnKind int

const (
	Numeric ColumnKind = iota
	Categorical
)

func (k ColumnKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k ColumnKind) MarshalText() ([]byte, error) {
	switch k {
	case Numeric, Categorical:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown column kind %d", int(k))
	}
}

func (k *ColumnKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "numeric":
		*k = Numeric
	case "categorical":
		*k = Categorical
	default:
		return fmt.Errorf("unknown column kind %q", string(text))
	}
	return nil
}

// Column names one feature and how it is encoded.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Value is a single cell: a number, a text, or an explicit missing marker.
type Value struct {
	num    float64
	text   string
	isText bool
	valid  bool
}

// Number, Text and Missing build cells.
func Number(v float64) Value { return Value{num: v, valid: true} }

func Text(s string) Value { return Value{text: s, isText: true, valid: true} }

func Missing() Value { return Value{} }

// IsMissing reports a missing cell.
func (v Value) IsMissing() bool { return !v.valid }

func (v Value) IsText() bool { return v.valid && v.isText }

// Float coerces the value to a number. Text is parsed.
func (v Value) Float() (float64, error) {
	if !v.valid {
		return 0, fmt.Errorf("%w: value is missing", ErrInvalidValue)
	}
	if !v.isText {
		return v.num, nil
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v.text)
	}
	return f, nil
}

// String returns the categorical form of the value; numbers are formatted
// with the shortest representation.
func (v Value) String() string {
	if !v.valid {
		return ""
	}
	if v.isText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case !v.valid:
		return []byte("null"), nil
	case v.isText:
		return json.Marshal(v.text)
	default:
		return json.Marshal(v.num)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Missing()
	case float64:
		*v = Number(x)
	case string:
		*v = Text(x)
	default:
		return fmt.Errorf("%w: unsupported cell %s", ErrInvalidValue, string(data))
	}
	return nil
}

// Frame is a typed table. Rows are positional and aligned to Columns.
type Frame struct {
	Columns []Column
	Rows    [][]Value
}

// NewFrame returns an empty frame with the given columns.
func NewFrame(columns []Column) *Frame {
	return &Frame{Columns: append([]Column(nil), columns...)}
}

func (f *Frame) Len() int { return len(f.Rows) }

// Append adds one row; its width must match the columns.
func (f *Frame) Append(row []Value) error {
	if len(row) != len(f.Columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(row), len(f.Columns))
	}
	f.Rows = append(f.Rows, row)
	return nil
}

func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Subset returns a frame holding the given rows. Row slices are shared.
func (f *Frame) Subset(indices []int) *Frame {
	out := &Frame{Columns: f.Columns, Rows: make([][]Value, len(indices))}
	for i, idx := range indices {
		out.Rows[i] = f.Rows[idx]
	}
	return out
}

// Row is a single prediction input aligned to a feature schema.
type Row struct {
	Columns []string `json:"columns"`
	Values  []Value  `json:"values"`
}

// Get returns the value of the named column.
func (r Row) Get(name string) (Value, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// Frame wraps the row into a one-record frame typed by schema.
func (r Row) Frame(schema FeatureSchema) (*Frame, error) {
	if err := schema.CheckColumns(r.Columns); err != nil {
		return nil, err
	}
	if len(r.Values) != len(r.Columns) {
		return nil, fmt.Errorf("%w: row has %d columns and %d values", ErrSchemaMismatch, len(r.Columns), len(r.Values))
	}
	frame := NewFrame(schema.Columns)
	frame.Rows = [][]Value{r.Values}
	return frame, nil
}
