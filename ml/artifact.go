package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// ArtifactFormat tags files written by SaveArtifact.
const ArtifactFormat = "raincast.pipeline/v1"

// Artifact is the fitted pipeline plus everything a consumer needs to use it
// without the training data: the feature schema, the decision threshold and
// the selection summary. It is written once and never mutated.
type Artifact struct {
	Format    string        `json:"format"`
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Schema    FeatureSchema `json:"schema"`
	Threshold float64       `json:"threshold"`
	Params    BoosterParams `json:"params"`
	CVScore   float64       `json:"cv_score"`
	Report    *Report       `json:"report,omitempty"`
	Pipeline  *Pipeline     `json:"pipeline"`
}

// NewArtifact wraps a fitted pipeline with a fresh ID and the threshold.
func NewArtifact(pipeline *Pipeline, threshold float64) (*Artifact, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is nil")
	}
	a := &Artifact{
		Format:    ArtifactFormat,
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Schema:    pipeline.Schema(),
		Threshold: threshold,
		Pipeline:  pipeline,
	}
	if pipeline.Classifier != nil {
		a.Params = pipeline.Classifier.Params
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the format tag, threshold, schema and fitted pipeline.
func (a *Artifact) Validate() error {
	if a.Format != ArtifactFormat {
		return fmt.Errorf("%w: unknown format %q", ErrArtifactCorrupt, a.Format)
	}
	if err := a.Schema.Validate(); err != nil {
		return err
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		return fmt.Errorf("%w: threshold %g outside (0, 1)", ErrArtifactCorrupt, a.Threshold)
	}
	if a.Pipeline == nil {
		return fmt.Errorf("%w: no pipeline", ErrArtifactCorrupt)
	}
	if err := a.Pipeline.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	}
	if !a.Pipeline.Schema().Equal(a.Schema) {
		return fmt.Errorf("%w: declared schema differs from the fitted preprocessor", ErrArtifactSchema)
	}
	return nil
}

// SaveArtifact writes gzip-compressed JSON to a temporary file next to path
// and renames it into place, so readers never observe a partial artifact.
func SaveArtifact(path string, a *Artifact) (err error) {
	if err := a.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := gzip.NewWriter(tmp)
	enc := json.NewEncoder(zw)
	if err = enc.Encode(a); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err = zw.Close(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadArtifact reads and validates the artifact at path.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	return ReadArtifact(f)
}

// ReadArtifact decodes a gzip JSON artifact. Undecodable input is
// ErrArtifactCorrupt; a missing schema is ErrArtifactSchema.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	}
	defer zr.Close()

	var a Artifact
	if err := json.NewDecoder(zr).Decode(&a); err != nil {
		if errors.Is(err, ErrArtifactSchema) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	}
	if len(a.Schema.Columns) == 0 {
		return nil, fmt.Errorf("%w: schema accessor missing", ErrArtifactSchema)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
