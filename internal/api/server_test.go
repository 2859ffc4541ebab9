package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seglab/gosegment/pkg/config"
	"github.com/seglab/gosegment/pkg/pipeline"
	"github.com/seglab/gosegment/pkg/registry"
)

const testKey = "sekrit"

func newTestServer(t *testing.T) (*Server, *registry.Registry, *pipeline.Engine) {
	t.Helper()

	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", t.Name())
	reg, err := registry.Open("sqlite", dsn)
	require.NoError(t, err)

	engine := pipeline.New(reg, pipeline.Params{
		Features:      []string{"spend", "visits"},
		Clusters:      2,
		MaxIterations: 100,
		Seed:          42,
		Eps:           0.8,
		MinSamples:    3,
		Components:    2,
		DriftAlpha:    0.05,
	})

	cfg := config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		APIKey:       testKey,
		APIKeyHeader: "X-API-Key",
	}
	return NewServer(cfg, engine, reg, zerolog.Nop()), reg, engine
}

func do(t *testing.T, s *Server, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func blobPayload(n int) []map[string]any {
	rng := rand.New(rand.NewSource(5))
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		base := 1.0
		if i >= n/2 {
			base = 10.0
		}
		rows = append(rows, map[string]any{
			"customer_id": 100 + i,
			"features": map[string]float64{
				"spend":  base + rng.Float64()*0.2,
				"visits": base + rng.Float64()*0.2,
			},
		})
	}
	return rows
}

func TestRootIsOpen(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestAPIKeyRequired(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/models", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/models", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrainAndListModels(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/train",
		map[string]any{"rows": blobPayload(20)}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.NotEmpty(t, body["run_id"])
	versions := body["versions"].(map[string]any)
	assert.Len(t, versions, 2)

	w = do(t, s, http.MethodGet, "/api/v1/models", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	models := decode(t, w)["models"].([]any)
	require.Len(t, models, 2)
	for _, m := range models {
		assert.Equal(t, true, m.(map[string]any)["trained"])
	}
}

func TestModelStatusUntrained(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/models/kmeans/status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["trained"])

	w = do(t, s, http.MethodGet, "/api/v1/models/spectral/status", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictRoundTrip(t *testing.T) {
	s, _, _ := newTestServer(t)

	rows := blobPayload(20)
	w := do(t, s, http.MethodPost, "/api/v1/train", map[string]any{"rows": rows}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/api/v1/predict/kmeans",
		map[string]any{"rows": rows}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.NotEmpty(t, body["version"])
	segments := body["segments"].(map[string]any)
	assert.Len(t, segments, 20)
	// customers from the same blob land in the same segment
	assert.Equal(t, segments["100"], segments["105"])
	assert.NotEqual(t, segments["100"], segments["115"])
}

func TestPredictWithoutModel(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/v1/predict/kmeans",
		map[string]any{"rows": blobPayload(4)}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictUnknownKind(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/v1/predict/spectral",
		map[string]any{"rows": blobPayload(4)}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictMissingFeature(t *testing.T) {
	s, _, engine := newTestServer(t)

	_, err := engine.Train(context.Background(), toRows(payloadRows(t, blobPayload(20))), "test")
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/api/v1/predict/kmeans", map[string]any{
		"rows": []map[string]any{
			{"customer_id": 1, "features": map[string]float64{"spend": 3}},
		},
	}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDriftCheck(t *testing.T) {
	s, _, _ := newTestServer(t)

	rows := blobPayload(20)
	w := do(t, s, http.MethodPost, "/api/v1/train", map[string]any{"rows": rows}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	shifted := blobPayload(20)
	for _, r := range shifted {
		f := r["features"].(map[string]float64)
		f["spend"] += 100
	}

	w = do(t, s, http.MethodPost, "/api/v1/monitor/drift/kmeans", map[string]any{
		"current":   shifted,
		"reference": rows,
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["drift_detected"])
}

func TestSegmentsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/segments/kmeans", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/train",
		map[string]any{"rows": blobPayload(20)}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/segments/kmeans?limit=5", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(5), body["count"])
}

func TestAuditLogEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/train",
		map[string]any{"rows": blobPayload(20)}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/audit/logs", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode(t, w)["entries"].([]any)
	require.NotEmpty(t, entries)
	assert.Equal(t, "train", entries[0].(map[string]any)["action"])
}

func TestTrainRejectsEmptyBody(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/v1/train", map[string]any{"rows": []any{}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// payloadRows converts the JSON-shaped test payload into typed rows.
func payloadRows(t *testing.T, payload []map[string]any) []rowPayload {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var rows []rowPayload
	require.NoError(t, json.Unmarshal(raw, &rows))
	return rows
}
