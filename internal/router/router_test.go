/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquawatch/common/config"
	"aquawatch/common/dto"
	"aquawatch/common/telemetry"
	"aquawatch/internal/broker"
	"aquawatch/internal/hub"
	"aquawatch/internal/ml"
	"aquawatch/internal/simulator"
)

func newTestRouter(t *testing.T) *Router {
	lc := logger.NewMockClient()
	metrics := telemetry.NewMetricsService()
	cfg := &config.AppConfig{
		Service:   config.ServiceConfig{Host: "127.0.0.1", Port: 0},
		Mqtt:      config.MqttConfig{Scheme: "tcp", BrokerHost: "localhost", BrokerPort: 1883, ClientId: "test", QoS: 1},
		Websocket: config.WebsocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024, MaxConnections: 10},
		ML: config.MLConfig{
			ModelDir: t.TempDir(), Contamination: 0.05, Estimators: 30,
			ValidationSplit: 0.2, SyntheticSamples: 400, ModelVersionLabel: "v1.0",
		},
	}
	b := broker.NewClient(cfg.Mqtt, metrics, lc)
	h := hub.NewHub(metrics, lc)
	detector := ml.NewAnomalyDetector(cfg.ML, lc)
	sim := simulator.NewSimulator(b, lc)
	return NewRouter(cfg, h, detector, b, sim, metrics, lc)
}

func doJSON(r *Router, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	r.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestRouter_Root(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(r, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "aquawatch", body["service"])
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(r, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["mqtt_connected"])
	assert.Equal(t, false, body["model_trained"])
	assert.Equal(t, float64(0), body["ws_connections"])
}

func TestRouter_MLMetricsUntrained(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(r, http.MethodGet, "/api/ml/metrics", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_TrainThenMetrics(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/api/test/train-ml-model", `{"num_samples":400}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["artifact_path"])
	assert.True(t, r.detector.IsTrained())

	rec = doJSON(r, http.MethodGet, "/api/ml/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics ml.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, 400, metrics.NumSamples)
}

func TestRouter_SimulateSensor(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/api/test/simulate-sensor", `{"sensor_id":"S9","sensor_type":"pH"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	// broker is not connected in tests, publish is best-effort false
	assert.Equal(t, false, body["published"])

	rec = doJSON(r, http.MethodPost, "/api/test/simulate-sensor", `{"sensor_type":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SimulateSensorExplicitValue(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/api/test/simulate-sensor",
		`{"sensor_id":"S9","sensor_type":"pH","value":9.75}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Reading dto.Reading `json:"reading"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 9.75, body.Reading.Value)
	assert.Equal(t, "pH", body.Reading.Type)

	rec = doJSON(r, http.MethodPost, "/api/test/simulate-sensor",
		`{"sensor_type":"pH","value":"not a number"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_TelemetrySnapshot(t *testing.T) {
	r := newTestRouter(t)
	r.metrics.MessagesReceived.Inc(3)

	rec := doJSON(r, http.MethodGet, "/api/telemetry", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Counters map[string]int64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Counters[telemetry.MessagesReceivedName])
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) dto.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg dto.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRouter_WebsocketLifecycle(t *testing.T) {
	r := newTestRouter(t)
	server := httptest.NewServer(r.echo)
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	welcome := readFrame(t, conn)
	assert.Equal(t, dto.WSTypeConnection, welcome.Type)

	// malformed frames are ignored, the connection survives
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))

	require.NoError(t, conn.WriteJSON(dto.WSMessage{Type: dto.WSTypePing}))
	pong := readFrame(t, conn)
	assert.Equal(t, dto.WSTypePong, pong.Type)

	require.NoError(t, conn.WriteJSON(dto.WSMessage{Type: dto.WSTypeSubscribe, Topics: []string{"alerts"}}))
	require.NoError(t, conn.WriteJSON(dto.WSMessage{Type: dto.WSTypePing}))
	readFrame(t, conn) // pong confirms the subscribe frame was processed

	r.hub.BroadcastToTopic("alerts", dto.WSMessage{Type: dto.WSTypeAnomalyAlert})
	alert := readFrame(t, conn)
	assert.Equal(t, dto.WSTypeAnomalyAlert, alert.Type)
}

func TestRouter_WebsocketDisconnectCleansUp(t *testing.T) {
	r := newTestRouter(t)
	server := httptest.NewServer(r.echo)
	defer server.Close()

	conn := dialWS(t, server)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return r.hub.ConnectionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return r.hub.ConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
