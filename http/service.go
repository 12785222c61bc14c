package http

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"raincast/db"
	"raincast/logging"
	"raincast/ml"
)

// Auditor persists served predictions.
type Auditor interface {
	SavePrediction(ctx context.Context, p db.PredictionRecord) error
}

// Result is one served prediction and the exact row the model saw.
type Result struct {
	Prediction ml.Prediction `json:"prediction"`
	Input      ml.Row        `json:"input"`
	ArtifactID string        `json:"artifact_id"`
	Cached     bool          `json:"cached"`
}

// PredictionService turns raw form values into predictions. Inference is
// deterministic, so identical assembled rows are answered from an LRU cache.
type PredictionService struct {
	model   ml.ModelProvider
	form    *Form
	cache   *lru.Cache[uint64, ml.Prediction]
	audit   Auditor
	metrics *Metrics
}

// NewPredictionService creates the service; cacheSize <= 0 disables caching
// and a nil auditor disables auditing.
func NewPredictionService(model ml.ModelProvider, form *Form, cacheSize int, audit Auditor, metrics *Metrics) (*PredictionService, error) {
	if model == nil || form == nil {
		return nil, fmt.Errorf("prediction service needs a model and a form")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &PredictionService{model: model, form: form, audit: audit, metrics: metrics}
	if cacheSize > 0 {
		cache, err := lru.New[uint64, ml.Prediction](cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Predict validates raw form values, assembles the row and scores it.
func (s *PredictionService) Predict(ctx context.Context, raw map[string]string) (*Result, error) {
	values, err := s.form.Parse(raw)
	if err != nil {
		return nil, err
	}
	row, err := ml.AssembleInput(s.model.Schema(), values)
	if err != nil {
		return nil, err
	}

	result := &Result{Input: row, ArtifactID: s.model.ArtifactID()}
	key := rowKey(row)
	if s.cache != nil {
		if pred, ok := s.cache.Get(key); ok {
			result.Prediction = pred
			result.Cached = true
		}
		s.metrics.observeCache(result.Cached)
	}
	if !result.Cached {
		pred, err := s.model.Predict(row)
		if err != nil {
			return nil, err
		}
		result.Prediction = pred
		if s.cache != nil {
			s.cache.Add(key, pred)
		}
	}
	s.metrics.observePrediction(result.Prediction.Rain)

	if s.audit != nil {
		s.record(ctx, result)
	}
	return result, nil
}

func (s *PredictionService) record(ctx context.Context, result *Result) {
	logger := logging.FromContext(ctx)
	input, err := json.Marshal(rowObject(result.Input))
	if err != nil {
		logger.Warn("encode audited input", zap.Error(err))
		return
	}
	err = s.audit.SavePrediction(ctx, db.PredictionRecord{
		ArtifactID: result.ArtifactID,
		RequestID:  GetRequestID(ctx),
		Input:      string(input),
		ProbRain:   result.Prediction.ProbRain,
		Rain:       result.Prediction.Rain,
		Threshold:  result.Prediction.Threshold,
	})
	if err != nil {
		logger.Warn("audit prediction", zap.Error(err))
	}
}

// rowKey hashes names and values; missing, numeric and text cells hash
// differently even when their string forms agree.
func rowKey(row ml.Row) uint64 {
	d := xxhash.New()
	for i, name := range row.Columns {
		v := row.Values[i]
		d.WriteString(name)
		switch {
		case v.IsMissing():
			d.WriteString("\x00m")
		case v.IsText():
			d.WriteString("\x00t")
		default:
			d.WriteString("\x00n")
		}
		d.WriteString(v.String())
		d.WriteString("\x00")
	}
	return d.Sum64()
}

// rowObject renders a row as a JSON object keyed by column.
func rowObject(row ml.Row) map[string]ml.Value {
	out := make(map[string]ml.Value, len(row.Columns))
	for i, name := range row.Columns {
		out[name] = row.Values[i]
	}
	return out
}
