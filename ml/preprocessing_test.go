package ml

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallFrame() *Frame {
	frame := NewFrame([]Column{
		{Name: "Temp", Kind: Numeric},
		{Name: "Dir", Kind: Categorical},
		{Name: "Rain", Kind: Categorical},
	})
	rows := [][]Value{
		{Number(10), Text("N"), Text("No")},
		{Number(20), Text("S"), Text("Yes")},
		{Missing(), Text("N"), Text("No")},
		{Number(40), Missing(), Text("Yes")},
		{Number(30), Text("S"), Missing()},
	}
	for _, r := range rows {
		if err := frame.Append(r); err != nil {
			panic(err)
		}
	}
	return frame
}

func TestPreprocessorFitStatistics(t *testing.T) {
	p := NewPreprocessor()
	require.NoError(t, p.Fit(smallFrame()))

	stats := p.Statistics()
	assert.Equal(t, "25", stats["Temp"])
	// N and S tie at two each; the smaller value wins.
	assert.Equal(t, "N", stats["Dir"])
	assert.Equal(t, "No", stats["Rain"])

	assert.Equal(t, []string{"Dir=N", "Dir=S", "Rain=No", "Rain=Yes", "Temp"}, p.OutputNames())
	assert.Equal(t, 5, p.Width())
}

func TestPreprocessorTransformImputes(t *testing.T) {
	p := NewPreprocessor()
	frame := smallFrame()
	require.NoError(t, p.Fit(frame))

	out, err := p.Transform(frame)
	require.NoError(t, err)
	rows, cols := out.Dims()
	require.Equal(t, 5, rows)
	require.Equal(t, 5, cols)

	assert.Equal(t, []float64{1, 0, 1, 0, 25}, out.RawRowView(2), "missing Temp gets the median")
	assert.Equal(t, []float64{1, 0, 0, 1, 40}, out.RawRowView(3), "missing Dir gets the most frequent value")
	assert.Equal(t, []float64{0, 1, 1, 0, 30}, out.RawRowView(4))
}

func TestPreprocessorUnknownCategoryEncodesZeroBlock(t *testing.T) {
	p := NewPreprocessor()
	require.NoError(t, p.Fit(smallFrame()))

	frame := NewFrame(smallFrame().Columns)
	require.NoError(t, frame.Append([]Value{Number(15), Text("WNW"), Text("Maybe")}))

	out, err := p.Transform(frame)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 15}, out.RawRowView(0))
}

func TestPreprocessorIsFrozenAfterFit(t *testing.T) {
	p := NewPreprocessor()
	require.NoError(t, p.Fit(smallFrame()))

	probe := NewFrame(smallFrame().Columns)
	require.NoError(t, probe.Append([]Value{Missing(), Missing(), Text("Yes")}))

	first, err := p.Transform(probe)
	require.NoError(t, err)

	// Transforming other data must not move the fitted statistics.
	other := NewFrame(smallFrame().Columns)
	require.NoError(t, other.Append([]Value{Number(1000), Text("E"), Text("No")}))
	_, err = p.Transform(other)
	require.NoError(t, err)

	second, err := p.Transform(probe)
	require.NoError(t, err)
	assert.Equal(t, first.RawRowView(0), second.RawRowView(0))
}

func TestPreprocessorRejectsSchemaMismatch(t *testing.T) {
	p := NewPreprocessor()
	require.NoError(t, p.Fit(smallFrame()))

	frame := NewFrame([]Column{{Name: "Temp", Kind: Numeric}, {Name: "Dir", Kind: Categorical}})
	require.NoError(t, frame.Append([]Value{Number(1), Text("N")}))
	_, err := p.Transform(frame)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	unfitted := NewPreprocessor()
	_, err = unfitted.Transform(smallFrame())
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestPreprocessorJSONRoundTrip(t *testing.T) {
	p := NewPreprocessor()
	frame := smallFrame()
	require.NoError(t, p.Fit(frame))

	data, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded Preprocessor
	require.NoError(t, json.Unmarshal(data, &decoded))

	want, err := p.Transform(frame)
	require.NoError(t, err)
	got, err := decoded.Transform(frame)
	require.NoError(t, err)
	assert.Equal(t, want.RawMatrix().Data, got.RawMatrix().Data)
}
