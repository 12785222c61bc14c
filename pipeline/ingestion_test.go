package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVMissingMarkersAndBOM(t *testing.T) {
	input := "\ufeffDate, MinTemp ,RainToday,RainTomorrow\n" +
		"2008-12-01,13.4,No,No\n" +
		"2008-12-02,NA,,Yes\n" +
		"2008-12-03,nan,None,NaN\n" +
		"2008-12-04,n/a,<NA>,#N/A N/A\n" +
		"2008-12-05,NAN,-1.#QNAN,Yes\n"

	table, err := ParseCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "MinTemp", "RainToday", "RainTomorrow"}, table.Header)
	require.Len(t, table.Records, 5)

	assert.Equal(t, "13.4", table.Records[0].Values[1].String())
	assert.True(t, table.Records[1].Values[1].IsMissing())
	assert.True(t, table.Records[1].Values[2].IsMissing())
	assert.True(t, table.Records[2].Values[3].IsMissing())
	for _, rec := range table.Records[3:] {
		assert.True(t, rec.Values[1].IsMissing(), "line %d", rec.Line)
		assert.True(t, rec.Values[2].IsMissing(), "line %d", rec.Line)
	}
	assert.True(t, table.Records[3].Values[3].IsMissing())
	assert.Equal(t, 10, table.Stats.MissingCells)
	assert.Equal(t, 4, table.Stats.MissingBy["MinTemp"])
	assert.Equal(t, 3, table.Records[1].Line)
}

func TestParseCSVRejectsMalformedInput(t *testing.T) {
	_, err := ParseCSV(context.Background(), strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err)

	_, err = ParseCSV(context.Background(), strings.NewReader("a,a\n1,2\n"))
	assert.ErrorContains(t, err, "duplicate column")

	_, err = ParseCSV(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.csv")
	require.NoError(t, os.WriteFile(path, []byte("MinTemp,RainTomorrow\n1,No\n"), 0o644))
	table, err := ReadCSV(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Stats.Rows)

	_, err = ReadCSV(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
