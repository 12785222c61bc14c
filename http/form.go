package http

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"raincast/ml"
)

// FieldSpec describes one input of the prediction form. An empty Default
// means the field starts as unknown.
type FieldSpec struct {
	Name      string        `json:"name"`
	Label     string        `json:"label"`
	Kind      ml.ColumnKind `json:"kind"`
	Min       float64       `json:"min,omitempty"`
	Max       float64       `json:"max,omitempty"`
	Step      float64       `json:"step,omitempty"`
	Options   []string      `json:"options,omitempty"`
	Default   string        `json:"default"`
	Secondary bool          `json:"secondary"`
}

var compass = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// DefaultFields is the weather form: the readings most people know first,
// then the optional ones.
func DefaultFields() []FieldSpec {
	num := func(name, label string, min, max, step float64, def string) FieldSpec {
		return FieldSpec{Name: name, Label: label, Kind: ml.Numeric, Min: min, Max: max, Step: step, Default: def}
	}
	dir := func(name, label string) FieldSpec {
		return FieldSpec{Name: name, Label: label, Kind: ml.Categorical, Options: compass, Secondary: true}
	}
	secondary := func(f FieldSpec) FieldSpec {
		f.Secondary = true
		return f
	}
	return []FieldSpec{
		num("MinTemp", "Minimum temperature (°C)", -10, 50, 0.1, "12"),
		num("MaxTemp", "Maximum temperature (°C)", -10, 60, 0.1, "22"),
		num("Rainfall", "Rainfall today (mm)", 0, 300, 0.1, "0"),
		num("Humidity3pm", "Humidity at 3pm (%)", 0, 100, 1, "55"),
		num("Pressure3pm", "Pressure at 3pm (hPa)", 950, 1100, 0.1, "1015"),
		num("Cloud3pm", "Cloud cover at 3pm (oktas)", 0, 9, 1, "4"),
		num("WindGustSpeed", "Strongest wind gust (km/h)", 0, 200, 1, "35"),
		num("WindSpeed3pm", "Wind speed at 3pm (km/h)", 0, 150, 1, "20"),
		{Name: "RainToday", Label: "Did it rain today?", Kind: ml.Categorical, Options: []string{"No", "Yes"}, Default: "No"},
		dir("WindDir3pm", "Wind direction at 3pm"),
		dir("WindDir9am", "Wind direction at 9am"),
		dir("WindGustDir", "Direction of the strongest gust"),
		secondary(num("WindSpeed9am", "Wind speed at 9am (km/h)", 0, 150, 1, "")),
		secondary(num("Temp9am", "Temperature at 9am (°C)", -10, 60, 0.1, "")),
		secondary(num("Pressure9am", "Pressure at 9am (hPa)", 950, 1050, 0.1, "")),
	}
}

func (f FieldSpec) rule() string {
	if f.Kind == ml.Numeric {
		return fmt.Sprintf("gte=%g,lte=%g", f.Min, f.Max)
	}
	return "oneof=" + strings.Join(f.Options, " ")
}

// FieldError reports one rejected form value.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects every invalid field of one submission.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// ByField indexes the messages by field name.
func (e FieldErrors) ByField() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		out[fe.Field] = fe.Message
	}
	return out
}

// Form is the set of inputs offered for a loaded model. Only fields whose
// column exists in the model schema are kept.
type Form struct {
	fields   []FieldSpec
	fixed    map[string]ml.Value
	dropped  []string
	validate *validator.Validate
}

// NewForm reconciles the configured fields and fixed values with schema.
// Fields for columns the model does not know are dropped; a field whose kind
// disagrees with the schema is an error.
func NewForm(schema ml.FeatureSchema, fields []FieldSpec, fixed map[string]string, logger *zap.Logger) (*Form, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	form := &Form{fixed: make(map[string]ml.Value), validate: validator.New()}
	seen := make(map[string]bool)

	for _, f := range fields {
		if seen[f.Name] {
			return nil, fmt.Errorf("form field %s declared twice", f.Name)
		}
		seen[f.Name] = true
		col, ok := schema.Lookup(f.Name)
		if !ok {
			logger.Warn("form field not in model schema, dropped", zap.String("field", f.Name))
			form.dropped = append(form.dropped, f.Name)
			continue
		}
		if col.Kind != f.Kind {
			return nil, fmt.Errorf("form field %s is %s but the model expects %s", f.Name, f.Kind, col.Kind)
		}
		switch f.Kind {
		case ml.Numeric:
			if f.Min >= f.Max {
				return nil, fmt.Errorf("form field %s has an empty range [%g, %g]", f.Name, f.Min, f.Max)
			}
		case ml.Categorical:
			if len(f.Options) == 0 {
				return nil, fmt.Errorf("form field %s has no options", f.Name)
			}
		}
		form.fields = append(form.fields, f)
	}

	names := make([]string, 0, len(fixed))
	for name := range fixed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("column %s is both a form field and a fixed value", name)
		}
		col, ok := schema.Lookup(name)
		if !ok {
			logger.Warn("fixed value not in model schema, dropped", zap.String("column", name))
			continue
		}
		v := ml.Text(fixed[name])
		if col.Kind == ml.Numeric {
			n, err := v.Float()
			if err != nil {
				return nil, fmt.Errorf("fixed value for %s: %w", name, err)
			}
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil, fmt.Errorf("fixed value for %s: %w: %q is not finite", name, ml.ErrInvalidValue, fixed[name])
			}
			v = ml.Number(n)
		}
		form.fixed[name] = v
	}
	return form, nil
}

func (f *Form) Fields() []FieldSpec { return f.fields }

// Dropped lists the configured fields whose column the model does not use.
func (f *Form) Dropped() []string { return f.dropped }

func (f *Form) Fixed() map[string]ml.Value { return f.fixed }

// Parse validates the submitted strings and returns the values for input
// assembly, fixed values included. Blank fields are unknown.
func (f *Form) Parse(input map[string]string) (map[string]ml.Value, error) {
	values := make(map[string]ml.Value, len(f.fields)+len(f.fixed))
	var errs FieldErrors

	for _, field := range f.fields {
		raw := strings.TrimSpace(input[field.Name])
		if raw == "" {
			values[field.Name] = ml.Missing()
			continue
		}
		switch field.Kind {
		case ml.Numeric:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				errs = append(errs, FieldError{Field: field.Name, Message: fmt.Sprintf("%q is not a number", raw)})
				continue
			}
			if err := f.validate.Var(n, field.rule()); err != nil {
				errs = append(errs, FieldError{Field: field.Name, Message: fmt.Sprintf("must be between %g and %g", field.Min, field.Max)})
				continue
			}
			values[field.Name] = ml.Number(n)
		case ml.Categorical:
			if err := f.validate.Var(raw, field.rule()); err != nil {
				errs = append(errs, FieldError{Field: field.Name, Message: "must be one of " + strings.Join(field.Options, ", ")})
				continue
			}
			values[field.Name] = ml.Text(raw)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	for name, v := range f.fixed {
		values[name] = v
	}
	return values, nil
}

// Defaults returns the initial form values.
func (f *Form) Defaults() map[string]string {
	out := make(map[string]string, len(f.fields))
	for _, field := range f.fields {
		out[field.Name] = field.Default
	}
	return out
}
