package ml

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toyArtifact(t *testing.T) *Artifact {
	t.Helper()
	pipeline, err := toyPipeline()
	require.NoError(t, err)
	a, err := NewArtifact(pipeline, 0.5)
	require.NoError(t, err)
	return a
}

func TestArtifactRoundTrip(t *testing.T) {
	a := toyArtifact(t)
	path := filepath.Join(t.TempDir(), "models", "rain.json.gz")
	require.NoError(t, SaveArtifact(path, a))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a.ID, loaded.ID)
	assert.True(t, a.Schema.Equal(loaded.Schema))
	assert.Equal(t, a.Threshold, loaded.Threshold)
	assert.Equal(t, a.Params, loaded.Params)

	X, _ := toyFrame(40)
	want, err := a.Pipeline.PredictProba(X)
	require.NoError(t, err)
	got, err := loaded.Pipeline.PredictProba(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestLoadArtifactCorrupt(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.gz")
	require.NoError(t, os.WriteFile(garbage, []byte("not a model"), 0o644))
	_, err := LoadArtifact(garbage)
	assert.ErrorIs(t, err, ErrArtifactCorrupt)

	truncated := filepath.Join(dir, "truncated.gz")
	require.NoError(t, os.WriteFile(truncated, gzipped(t, `{"format":"raincast.pipeline/v1","schema":{`), 0o644))
	_, err = LoadArtifact(truncated)
	assert.ErrorIs(t, err, ErrArtifactCorrupt)

	_, err = LoadArtifact(filepath.Join(dir, "absent.gz"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadArtifactWithoutSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noschema.gz")
	require.NoError(t, os.WriteFile(path, gzipped(t, `{"format":"raincast.pipeline/v1","threshold":0.5}`), 0o644))
	_, err := LoadArtifact(path)
	assert.ErrorIs(t, err, ErrArtifactSchema)
}

func TestArtifactValidateDetectsTampering(t *testing.T) {
	a := toyArtifact(t)
	a.Schema.Fingerprint = "0000000000000000"
	assert.ErrorIs(t, a.Validate(), ErrArtifactSchema)

	a = toyArtifact(t)
	a.Threshold = 1.5
	assert.ErrorIs(t, a.Validate(), ErrArtifactCorrupt)

	a = toyArtifact(t)
	a.Schema = NewFeatureSchema(a.Schema.Columns[:2])
	assert.ErrorIs(t, a.Validate(), ErrArtifactSchema)
}

func gzipped(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
