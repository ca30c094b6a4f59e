package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/frain-dev/tether/config"
	"github.com/frain-dev/tether/internal/pkg/transport"
	"github.com/frain-dev/tether/supervisor"
	"github.com/frain-dev/tether/util"
	"github.com/stretchr/testify/require"
)

type refusingDialer struct{}

func (refusingDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	return nil, &transport.ConnectionError{Err: errors.New("connection refused")}
}

func newTestHandler(t *testing.T) *ApplicationHandler {
	t.Helper()

	c := config.Configuration{
		Endpoints: []config.EndpointConfiguration{
			{Name: "metrics", URL: "wss://localhost:9201/metrics"},
		},
	}
	config.Override(&c)
	cfg, err := config.Get()
	require.NoError(t, err)

	sup, err := supervisor.New(cfg, supervisor.WithDialer(refusingDialer{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Close() })

	a, err := NewApplicationHandler(Options{Supervisor: sup})
	require.NoError(t, err)
	a.BuildRoutes()

	return a
}

func serve(t *testing.T, a *ApplicationHandler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) util.ServerResponse {
	t.Helper()

	var resp util.ServerResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.True(t, resp.Status)
}

func TestGetStatusAll(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var statuses map[string]supervisor.Status
	resp := decodeResponse(t, w)
	require.NoError(t, json.Unmarshal(resp.Data, &statuses))
	require.Contains(t, statuses, "metrics")
	require.Equal(t, supervisor.StateClosed, statuses["metrics"].State)
}

func TestGetStatus_UnknownEndpoint(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodGet, "/api/v1/status/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	resp := decodeResponse(t, w)
	require.False(t, resp.Status)
	require.Equal(t, supervisor.ErrEndpointNotFound.Error(), resp.Message)
}

func TestGetTelemetry(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodGet, "/api/v1/telemetry/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)

	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	require.Equal(t, "metrics", snap["endpoint"])
}

func TestGetAdvice(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodGet, "/api/v1/advice/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	require.Equal(t, "none", rec["action"])
}

func TestSendMessage_QueuedWhileDisconnected(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodPost, "/api/v1/endpoints/metrics/messages", `{"payload":{"v":1},"priority":"high"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	resp := decodeResponse(t, w)

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.Equal(t, "queued", out["outcome"])
}

func TestSendMessage_DefaultsToNormalPriority(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodPost, "/api/v1/endpoints/metrics/messages", `{"payload":{"v":1}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestSendMessage_InvalidPriority(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodPost, "/api/v1/endpoints/metrics/messages", `{"payload":{"v":1},"priority":"urgent"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_MissingPayload(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodPost, "/api/v1/endpoints/metrics/messages", `{"priority":"high"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_UnknownEndpoint(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodPost, "/api/v1/endpoints/nope/messages", `{"payload":{"v":1}}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenConnection_DialFailure(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodPost, "/api/v1/endpoints/metrics/connection", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCloseConnection(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodDelete, "/api/v1/endpoints/metrics/connection", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestHandler(t)

	w := serve(t, a, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}
