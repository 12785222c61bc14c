package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"raincast/logging"
	"raincast/ml"
)

var (
	ErrMissingTarget = errors.New("target column not found")
	ErrEmptyDataset  = errors.New("dataset has no usable rows")
)

// Options names the target and the identifier columns removed from features.
type Options struct {
	Target      string
	DropColumns []string
}

func DefaultOptions() Options {
	return Options{Target: "RainTomorrow", DropColumns: []string{"Date"}}
}

// Dataset is the prepared feature frame and binary labels.
type Dataset struct {
	X         *ml.Frame
	Y         []int
	Ingestion IngestionStats
	Cleaning  CleaningStats
	Issues    []QualityIssue
	Dropped   []string
}

// Load reads the CSV at path and prepares it.
func Load(ctx context.Context, path string, opts Options) (*Dataset, error) {
	table, err := ReadCSV(ctx, path)
	if err != nil {
		return nil, err
	}
	return Prepare(ctx, table, opts)
}

// Prepare drops unlabeled rows, encodes the target, removes the target and
// identifier columns, and infers each remaining column's kind: numeric when
// every present cell in the file parses as a number, categorical otherwise.
func Prepare(ctx context.Context, table *Table, opts Options) (*Dataset, error) {
	logger := logging.FromContext(ctx)

	target := table.ColumnIndex(opts.Target)
	if target < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingTarget, opts.Target)
	}

	drop := map[int]bool{target: true}
	var dropped []string
	for _, name := range opts.DropColumns {
		if idx := table.ColumnIndex(name); idx >= 0 {
			drop[idx] = true
			dropped = append(dropped, name)
		} else {
			logger.Debug("identifier column not present", zap.String("column", name))
		}
	}

	var keep []int
	var columns []ml.Column
	for i, name := range table.Header {
		if drop[i] {
			continue
		}
		keep = append(keep, i)
		columns = append(columns, ml.Column{Name: name, Kind: inferKind(table.Records, i)})
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ErrEmptyDataset)
	}

	cleaner := NewDataCleaner(logger,
		&TargetPresentRule{Column: opts.Target, Index: target},
		NewTargetLabelRule(opts.Target, target),
	)
	records, issues := cleaner.Clean(table.Records)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: all %d rows rejected", ErrEmptyDataset, len(table.Records))
	}

	X := ml.NewFrame(columns)
	y := make([]int, 0, len(records))
	for _, rec := range records {
		row := make([]ml.Value, len(keep))
		for j, src := range keep {
			v := rec.Values[src]
			if columns[j].Kind == ml.Numeric && !v.IsMissing() {
				f, err := v.Float()
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", rec.Line, err)
				}
				v = ml.Number(f)
				if math.IsNaN(f) {
					v = ml.Missing()
				}
			}
			row[j] = v
		}
		if err := X.Append(row); err != nil {
			return nil, fmt.Errorf("line %d: %w", rec.Line, err)
		}
		y = append(y, rec.Label)
	}

	stats := cleaner.GetStats()
	logger.Info("dataset prepared",
		zap.Int("rows", X.Len()),
		zap.Int("features", len(columns)),
		zap.Int64("rejected", stats.Rejected),
		zap.Strings("dropped_columns", dropped))

	return &Dataset{
		X:         X,
		Y:         y,
		Ingestion: table.Stats,
		Cleaning:  stats,
		Issues:    issues,
		Dropped:   dropped,
	}, nil
}

func inferKind(records []*Record, col int) ml.ColumnKind {
	for _, rec := range records {
		v := rec.Values[col]
		if v.IsMissing() {
			continue
		}
		if _, err := v.Float(); err != nil {
			return ml.Categorical
		}
	}
	return ml.Numeric
}
