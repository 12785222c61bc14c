package http

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"raincast/logging"
	"raincast/ml"
)

//go:embed templates/index.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"pct": func(p float64) string { return fmt.Sprintf("%.1f%%", p*100) },
	"cell": func(v ml.Value) string {
		if v.IsMissing() {
			return "unknown"
		}
		return v.String()
	},
	"numeric": func(k ml.ColumnKind) bool { return k == ml.Numeric },
}

// AppConfig wires the serving dependencies.
type AppConfig struct {
	Model          ml.ModelProvider
	Form           *Form
	Audit          Auditor
	Metrics        *Metrics
	Logger         *zap.Logger
	CacheSize      int
	AllowedOrigins []string
}

// App holds the handlers of the prediction form and its JSON API. The loaded
// model is never replaced while the process runs.
type App struct {
	model    ml.ModelProvider
	form     *Form
	service  *PredictionService
	metrics  *Metrics
	logger   *zap.Logger
	page     *template.Template
	upgrader websocket.Upgrader
	started  time.Time
}

// NewApp builds the prediction service and parses the page template.
func NewApp(cfg AppConfig) (*App, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	service, err := NewPredictionService(cfg.Model, cfg.Form, cfg.CacheSize, cfg.Audit, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	page, err := template.New("index.html").Funcs(funcs).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	cfg.Metrics.SetArtifact(cfg.Model.ArtifactID(), cfg.Model.Schema().Fingerprint)

	app := &App{
		model:   cfg.Model,
		form:    cfg.Form,
		service: service,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		page:    page,
		started: time.Now(),
	}
	app.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     sameOriginOr(cfg.AllowedOrigins),
	}
	return app, nil
}

// RegisterHandlers mounts every route on mux, instrumented by route name.
func (a *App) RegisterHandlers(mux *http.ServeMux) {
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, a.metrics.instrument(route, h))
	}
	handle("GET /{$}", "index", a.handleIndex)
	handle("POST /predict", "predict_form", a.handlePredictForm)
	handle("POST /api/predict", "predict_api", a.handlePredictAPI)
	handle("GET /api/schema", "schema", a.handleSchema)
	handle("GET /api/form", "form", a.handleForm)
	handle("GET /api/health", "health", a.handleHealth)
	handle("GET /ws/predict", "predict_ws", a.handlePredictWS)
	mux.Handle("GET /metrics", a.metrics.Handler())
}

type fieldView struct {
	FieldSpec
	Value string
	Error string
}

type pageData struct {
	Primary    []fieldView
	Secondary  []fieldView
	Result     *Result
	Error      string
	ArtifactID string
	Threshold  float64
}

func (a *App) pageData(values map[string]string, fieldErrs map[string]string) pageData {
	data := pageData{ArtifactID: a.model.ArtifactID(), Threshold: a.model.Threshold()}
	for _, f := range a.form.Fields() {
		view := fieldView{FieldSpec: f, Value: values[f.Name], Error: fieldErrs[f.Name]}
		if f.Secondary {
			data.Secondary = append(data.Secondary, view)
		} else {
			data.Primary = append(data.Primary, view)
		}
	}
	return data
}

func (a *App) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := a.page.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error("render page", zap.Error(err))
	}
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, a.pageData(a.form.Defaults(), nil))
}

func (a *App) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		data := a.pageData(a.form.Defaults(), nil)
		data.Error = "could not read the form"
		a.render(w, r, http.StatusBadRequest, data)
		return
	}
	values := make(map[string]string, len(r.PostForm))
	for name := range r.PostForm {
		values[name] = r.PostForm.Get(name)
	}

	result, err := a.service.Predict(r.Context(), values)
	if err != nil {
		var fieldErrs FieldErrors
		data := a.pageData(values, nil)
		if errors.As(err, &fieldErrs) {
			data = a.pageData(values, fieldErrs.ByField())
		}
		data.Error = a.userMessage(r, err)
		a.render(w, r, statusFor(err), data)
		return
	}
	data := a.pageData(values, nil)
	data.Result = result
	a.render(w, r, http.StatusOK, data)
}

type predictionResponse struct {
	ArtifactID string              `json:"artifact_id"`
	Verdict    string              `json:"verdict"`
	Rain       bool                `json:"rain"`
	ProbRain   float64             `json:"prob_rain"`
	ProbNoRain float64             `json:"prob_no_rain"`
	Threshold  float64             `json:"threshold"`
	Cached     bool                `json:"cached"`
	Input      map[string]ml.Value `json:"input"`
	Columns    []string            `json:"columns"`
}

func newPredictionResponse(res *Result) predictionResponse {
	verdict := "no rain"
	if res.Prediction.Rain {
		verdict = "rain"
	}
	return predictionResponse{
		ArtifactID: res.ArtifactID,
		Verdict:    verdict,
		Rain:       res.Prediction.Rain,
		ProbRain:   res.Prediction.ProbRain,
		ProbNoRain: res.Prediction.ProbNoRain,
		Threshold:  res.Prediction.Threshold,
		Cached:     res.Cached,
		Input:      rowObject(res.Input),
		Columns:    res.Input.Columns,
	}
}

type errorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

func (a *App) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	values, err := decodeValues(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	result, err := a.service.Predict(r.Context(), values)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newPredictionResponse(result))
}

// decodeValues reads a JSON object of column name to number, string or null.
func decodeValues(r *http.Request) (map[string]string, error) {
	var body map[string]json.RawMessage
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("request body must be a JSON object: %v", err)
	}
	return rawValues(body)
}

func rawValues(body map[string]json.RawMessage) (map[string]string, error) {
	values := make(map[string]string, len(body))
	for name, raw := range body {
		text := strings.TrimSpace(string(raw))
		switch {
		case text == "null":
			continue
		case strings.HasPrefix(text, `"`):
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("field %s: %v", name, err)
			}
			values[name] = s
		case strings.HasPrefix(text, "{"), strings.HasPrefix(text, "["):
			return nil, fmt.Errorf("field %s must be a number, a string or null", name)
		default:
			values[name] = text
		}
	}
	return values, nil
}

func (a *App) respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: a.userMessage(r, err)}
	var fieldErrs FieldErrors
	if errors.As(err, &fieldErrs) {
		resp.Fields = fieldErrs
	}
	respondJSON(w, statusFor(err), resp)
}

// userMessage hides internal failures behind a generic message.
func (a *App) userMessage(r *http.Request, err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("prediction failed", zap.Error(err))
		return "prediction failed"
	}
	return err.Error()
}

func statusFor(err error) int {
	var fieldErrs FieldErrors
	switch {
	case errors.As(err, &fieldErrs), errors.Is(err, ml.ErrInvalidValue), errors.Is(err, ml.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema := a.model.Schema()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"artifact_id": a.model.ArtifactID(),
		"threshold":   a.model.Threshold(),
		"version":     schema.Version,
		"fingerprint": schema.Fingerprint,
		"columns":     schema.Columns,
	})
}

func (a *App) handleForm(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fields":  a.form.Fields(),
		"fixed":   a.form.Fixed(),
		"dropped": a.form.Dropped(),
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"artifact_id": a.model.ArtifactID(),
		"uptime":      strconv.FormatFloat(time.Since(a.started).Seconds(), 'f', 0, 64) + "s",
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
