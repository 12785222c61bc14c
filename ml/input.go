package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AssembleInput builds the single prediction row for schema. Columns without
// a supplied value are explicit missing markers, so inference imputes them the
// way training imputed missing cells. Numeric columns are coerced to float,
// categorical columns to text. Names outside the schema are ignored.
func AssembleInput(schema FeatureSchema, values map[string]Value) (Row, error) {
	row := Row{
		Columns: schema.Names(),
		Values:  make([]Value, schema.Len()),
	}
	for i, col := range schema.Columns {
		v, ok := values[col.Name]
		if !ok || v.IsMissing() {
			row.Values[i] = Missing()
			continue
		}
		coerced, err := coerce(col, v)
		if err != nil {
			return Row{}, err
		}
		row.Values[i] = coerced
	}
	return row, nil
}

func coerce(col Column, v Value) (Value, error) {
	switch col.Kind {
	case Numeric:
		var f float64
		var err error
		if v.IsText() {
			f, err = strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		} else {
			f, err = v.Float()
		}
		if err != nil {
			return Value{}, fmt.Errorf("%w: column %s expects a number, got %q", ErrInvalidValue, col.Name, v.String())
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%w: column %s expects a finite number, got %q", ErrInvalidValue, col.Name, v.String())
		}
		return Number(f), nil
	case Categorical:
		return Text(v.String()), nil
	default:
		return Value{}, fmt.Errorf("%w: column %s has unsupported kind %v", ErrInvalidValue, col.Name, col.Kind)
	}
}
