package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raincast/ml"
)

func record(line int, target ml.Value) *Record {
	return &Record{Line: line, Values: []ml.Value{ml.Number(1), target}}
}

func TestTargetRules(t *testing.T) {
	present := &TargetPresentRule{Column: "RainTomorrow", Index: 1}
	label := NewTargetLabelRule("RainTomorrow", 1)

	tests := []struct {
		name      string
		target    ml.Value
		wantErr   bool
		wantLabel int
	}{
		{"yes", ml.Text("Yes"), false, 1},
		{"no", ml.Text("No"), false, 0},
		{"padded", ml.Text(" Yes "), false, 1},
		{"missing", ml.Missing(), true, 0},
		{"unknown label", ml.Text("Maybe"), true, 0},
		{"lower case", ml.Text("yes"), true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(2, tt.target)
			out, err := present.Apply(rec)
			if err == nil {
				out, err = label.Apply(out)
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, out.Label)
		})
	}
}

func TestDataCleanerClean(t *testing.T) {
	cleaner := NewDataCleaner(nil,
		&TargetPresentRule{Column: "RainTomorrow", Index: 1},
		NewTargetLabelRule("RainTomorrow", 1),
	)
	records := []*Record{
		record(2, ml.Text("No")),
		record(3, ml.Missing()),
		record(4, ml.Text("Yes")),
		record(5, ml.Text("??")),
	}

	cleaned, issues := cleaner.Clean(records)
	require.Len(t, cleaned, 2)
	assert.Equal(t, 2, cleaned[0].Line)
	assert.Equal(t, 1, cleaned[1].Label)

	require.Len(t, issues, 2)
	assert.Equal(t, "target_present", issues[0].Type)
	assert.Equal(t, 3, issues[0].Line)
	assert.Equal(t, "target_label", issues[1].Type)

	stats := cleaner.GetStats()
	assert.Equal(t, int64(4), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.Passed)
	assert.Equal(t, int64(2), stats.Rejected)
	assert.Equal(t, int64(1), stats.Issues["target_present"])

	assert.Len(t, cleaner.GetIssues(1), 1)
	assert.Equal(t, 5, cleaner.GetIssues(1)[0].Line)
	assert.Len(t, cleaner.GetIssues(0), 2)
}
