package ml

import "errors"

var (
	// ErrSchemaMismatch reports a row or frame whose columns differ from the fitted schema.
	ErrSchemaMismatch   = errors.New("schema mismatch")
	// ErrInvalidValue reports a cell that cannot be coerced to its column kind.
	ErrInvalidValue     = errors.New("invalid value")
	ErrNoPositiveClass  = errors.New("no positive-class records in training split")
	ErrNoNegativeClass  = errors.New("no negative-class records in training split")
	// ErrDegenerateFold reports a fold lacking one class on either side.
	ErrDegenerateFold   = errors.New("degenerate cross-validation fold")
	ErrDegenerateSplit  = errors.New("degenerate train/test split")
	// ErrArtifactCorrupt reports an artifact that does not decode or validate.
	ErrArtifactCorrupt  = errors.New("artifact corrupt")
	// ErrArtifactSchema reports an artifact without a usable feature schema.
	ErrArtifactSchema   = errors.New("artifact has no usable feature schema")
	ErrNotFitted        = errors.New("model not trained")
	ErrEmptyTrainingSet = errors.New("features or labels empty")
)
