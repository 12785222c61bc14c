package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"raincast/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 16 << 10
)

// wsRequest is one prediction request on the socket; ID is echoed back.
type wsRequest struct {
	ID     string                     `json:"id"`
	Values map[string]json.RawMessage `json:"values"`
}

type wsResponse struct {
	ID         string              `json:"id,omitempty"`
	Prediction *predictionResponse `json:"prediction,omitempty"`
	Error      *errorResponse      `json:"error,omitempty"`
}

// handlePredictWS answers every message with a prediction, so a client can
// re-score as the user edits the form.
func (a *App) handlePredictWS(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if a.writeWS(conn, wsResponse{Error: &errorResponse{Error: "message must be a JSON object"}}) != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read", zap.Error(err))
			}
			return
		}

		resp := wsResponse{ID: req.ID}
		values, err := rawValues(req.Values)
		if err == nil {
			var result *Result
			result, err = a.service.Predict(r.Context(), values)
			if err == nil {
				pred := newPredictionResponse(result)
				resp.Prediction = &pred
			}
		}
		if err != nil {
			e := errorResponse{Error: a.userMessage(r, err)}
			var fieldErrs FieldErrors
			if errors.As(err, &fieldErrs) {
				e.Fields = fieldErrs
			}
			resp.Error = &e
		}
		if err := a.writeWS(conn, resp); err != nil {
			logger.Debug("websocket write", zap.Error(err))
			return
		}
	}
}

func (a *App) writeWS(conn *websocket.Conn, resp wsResponse) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(resp)
}

// sameOriginOr accepts requests without an Origin header, same-host origins,
// and the configured extra origins.
func sameOriginOr(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err == nil && u.Host == r.Host {
			return true
		}
		return originAllowed(allowed, origin)
	}
}
