package ml

import "fmt"

// LoadModel loads the artifact at path and returns a predictor for it.
// Any failure here must stop the serving process.
func LoadModel(path string) (*Predictor, error) {
	artifact, err := LoadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return NewPredictor(artifact)
}
