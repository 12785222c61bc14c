package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictWebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, &fakeModel{}, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predict"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"id":     "1",
		"values": map[string]interface{}{"Humidity3pm": 75, "RainToday": "No"},
	}))
	var resp wsResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "1", resp.ID)
	require.NotNil(t, resp.Prediction)
	assert.Equal(t, "rain", resp.Prediction.Verdict)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"id":     "2",
		"values": map[string]interface{}{"Humidity3pm": 300},
	}))
	resp = wsResponse{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "2", resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Humidity3pm", resp.Error.Fields[0].Field)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	resp = wsResponse{}
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, &fakeModel{}, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predict"
	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
