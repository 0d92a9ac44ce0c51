package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempcast/config"
	"tempcast/ml"
)

type failingModel struct{}

func (failingModel) Fit([][]float64, []float64) error   { return nil }
func (failingModel) Predict([]float64) (float64, error) { return 0, errors.New("boom") }
func (failingModel) Variant() ml.Variant                { return ml.VariantDecisionTree }

func writeArtifact(t *testing.T, dir string, model ml.Regressor) string {
	t.Helper()
	samples, err := ml.GenerateSamples(ml.DefaultDatasetConfig(), 42)
	require.NoError(t, err)
	require.NoError(t, model.Fit(ml.Features(samples), ml.Targets(samples)))

	path := filepath.Join(dir, ml.ArtifactFileName(model.Variant().DisplayName(), ""))
	require.NoError(t, ml.SaveArtifact(path, model, 0.05, time.Now()))
	return path
}

func fixedPaths(paths ...string) ml.LocateFunc {
	return ml.SearchPaths(func() []string { return paths })
}

func newTestHandler(service *PredictionService) http.Handler {
	cfg := config.Default().Server
	return NewHandler(service, NewPredictStream(service, zap.NewNop(), cfg.AllowedOrigins), cfg, zap.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var payload map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	}
	return w, payload
}

func TestRootAndHealthIgnoreArtifact(t *testing.T) {
	h := newTestHandler(NewPredictionService(fixedPaths(filepath.Join(t.TempDir(), "missing.model")), nil))

	w, payload := doJSON(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"message": "Temperature Change Prediction API is running!",
		"status":  "healthy",
	}, payload)

	w, payload = doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"status":  "healthy",
		"service": "Temperature Prediction API",
	}, payload)
}

func TestUnknownRoutes(t *testing.T) {
	h := newTestHandler(NewPredictionService(fixedPaths(), nil))

	w, _ := doJSON(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, h, http.MethodGet, "/predict", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPredictEveryYearInRange(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), ml.NewRandomForest(5, 42))
	h := newTestHandler(NewPredictionService(fixedPaths(path), nil))

	for year := MinYear; year <= MaxYear; year++ {
		body, _ := json.Marshal(map[string]int{"year": year})
		w, payload := doJSON(t, h, http.MethodPost, "/predict", string(body))
		require.Equal(t, http.StatusOK, w.Code)
		require.NotContains(t, payload, "error", "year %d", year)

		assert.Equal(t, float64(year), payload["year"])
		prediction, ok := payload["prediction"].(float64)
		require.True(t, ok)
		assert.False(t, math.IsNaN(prediction) || math.IsInf(prediction, 0))
		assert.Equal(t, "degrees Celsius change", payload["unit"])
		assert.Equal(t, "Random Forest", payload["model"])
	}
}

func TestPredictRejectsInvalidBodyBeforeLoading(t *testing.T) {
	var loads atomic.Int32
	var locates atomic.Int32
	locate := func() (string, error) {
		locates.Add(1)
		return "unused.model", nil
	}
	loader := func(string) (*ml.Artifact, error) {
		loads.Add(1)
		return nil, errors.New("should not be called")
	}
	h := newTestHandler(NewPredictionService(locate, loader))

	cases := map[string]struct {
		body string
		loc  []any
		typ  string
	}{
		"below range":  {`{"year": 1959}`, []any{"body", "year"}, "greater_than_equal"},
		"above range":  {`{"year": 2031}`, []any{"body", "year"}, "less_than_equal"},
		"missing year": {`{}`, []any{"body", "year"}, "missing"},
		"null year":    {`{"year": null}`, []any{"body", "year"}, "missing"},
		"string year":  {`{"year": "abc"}`, []any{"body", "year"}, "int_type"},
		"bool year":    {`{"year": true}`, []any{"body", "year"}, "int_type"},
		"fractional":   {`{"year": 2020.5}`, []any{"body", "year"}, "int_from_float"},
		"malformed":    {`{"year": `, []any{"body"}, "json_invalid"},
		"empty body":   {``, []any{"body"}, "missing"},
		"array body":   {`[2020]`, []any{"body"}, "model_attributes_type"},
		"huge integer": {`{"year": 99999999999}`, []any{"body", "year"}, "int_type"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, payload := doJSON(t, h, http.MethodPost, "/predict", tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

			details, ok := payload["detail"].([]any)
			require.True(t, ok)
			require.Len(t, details, 1)
			detail := details[0].(map[string]any)
			assert.Equal(t, tc.loc, detail["loc"])
			assert.Equal(t, tc.typ, detail["type"])
			assert.NotEmpty(t, detail["msg"])
			assert.NotContains(t, payload, "prediction")
		})
	}

	assert.Zero(t, loads.Load())
	assert.Zero(t, locates.Load())
}

func TestPredictRangeMessages(t *testing.T) {
	h := newTestHandler(NewPredictionService(fixedPaths(), nil))

	_, payload := doJSON(t, h, http.MethodPost, "/predict", `{"year": 1900}`)
	detail := payload["detail"].([]any)[0].(map[string]any)
	assert.Equal(t, "Input should be greater than or equal to 1960", detail["msg"])

	_, payload = doJSON(t, h, http.MethodPost, "/predict", `{"year": 2100}`)
	detail = payload["detail"].([]any)[0].(map[string]any)
	assert.Equal(t, "Input should be less than or equal to 2030", detail["msg"])
}

func TestPredictAcceptsIntegralFloat(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), ml.NewDecisionTree(0))
	h := newTestHandler(NewPredictionService(fixedPaths(path), nil))

	w, payload := doJSON(t, h, http.MethodPost, "/predict", `{"year": 2020.0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2020), payload["year"])
	assert.Equal(t, "Decision Tree", payload["model"])
}

func TestPredictWithoutArtifact(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Artifact.SearchDirs = []string{dir, filepath.Join(dir, "models")}
	cfg.Artifact.IncludeExecutableDir = false
	h := newTestHandler(NewPredictionService(ml.SearchPaths(cfg.SearchPaths), nil))

	w, payload := doJSON(t, h, http.MethodPost, "/predict", `{"year": 2025}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, payload, 1)
	msg := payload["error"].(string)
	assert.True(t, strings.HasPrefix(msg, "Model file not found. Searched in: ["), msg)
	for _, name := range cfg.ArtifactFiles() {
		assert.Contains(t, msg, filepath.Join(dir, "models", name))
	}
	assert.True(t, strings.HasSuffix(msg, "Please ensure 'Linear Regression (GD).model' exists in one of these locations."), msg)

	w, payload = doJSON(t, h, http.MethodGet, "/model-info", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"error": "Model file not found"}, payload)
}

func TestPredictWithCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Random Forest.model")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	h := newTestHandler(NewPredictionService(fixedPaths(path), nil))

	w, payload := doJSON(t, h, http.MethodPost, "/predict", `{"year": 2025}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(payload["error"].(string), "Error loading the model from "+path+": "))
	assert.NotContains(t, payload, "prediction")

	_, payload = doJSON(t, h, http.MethodGet, "/model-info", "")
	assert.True(t, strings.HasPrefix(payload["error"].(string), "Error loading model info: "))
	assert.NotContains(t, payload, "model_type")
}

func TestPredictWithMalformedModelStructure(t *testing.T) {
	cases := map[string]string{
		"null tree":   `{"variant":"random_forest","name":"Random Forest","model":{"n_features":1,"estimators":[null]}}`,
		"cyclic tree": `{"variant":"decision_tree","name":"Decision Tree","model":{"n_features":1,"nodes":[{"feature_idx":0,"threshold":2000,"left_child":0,"right_child":1},{"is_leaf":true}]}}`,
	}
	for name, artifact := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "broken.model")
			require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))
			h := newTestHandler(NewPredictionService(fixedPaths(path), nil))

			done := make(chan struct{})
			var w *httptest.ResponseRecorder
			var payload map[string]any
			go func() {
				defer close(done)
				w, payload = doJSON(t, h, http.MethodPost, "/predict", `{"year": 2025}`)
			}()
			select {
			case <-done:
			case <-time.After(3 * time.Second):
				t.Fatal("request did not complete")
			}

			require.Equal(t, http.StatusOK, w.Code)
			assert.True(t, strings.HasPrefix(payload["error"].(string), "Error loading the model from "+path+": "), payload["error"])
			assert.Contains(t, payload["error"], "invalid model structure")
		})
	}
}

func TestPredictInferenceFailure(t *testing.T) {
	loader := func(string) (*ml.Artifact, error) {
		return &ml.Artifact{Variant: ml.VariantDecisionTree, Name: "Decision Tree", Model: failingModel{}}, nil
	}
	h := newTestHandler(NewPredictionService(func() (string, error) { return "Decision Tree.model", nil }, loader))

	w, payload := doJSON(t, h, http.MethodPost, "/predict", `{"year": 2025}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"error": "Error during prediction: boom"}, payload)
}

func TestModelInfo(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), ml.NewRandomForest(3, 42))
	h := newTestHandler(NewPredictionService(fixedPaths(path), nil))

	w, payload := doJSON(t, h, http.MethodGet, "/model-info", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"model_type":     "RandomForest",
		"model_path":     path,
		"input_features": []any{"year"},
		"output":         "temperature_change_celsius",
		"year_range":     "1960-2030",
	}, payload)
}

func TestArtifactIsReadOnEveryRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "current.model")
	h := newTestHandler(NewPredictionService(fixedPaths(path), nil))

	_, payload := doJSON(t, h, http.MethodGet, "/model-info", "")
	assert.Contains(t, payload, "error")

	first := writeArtifact(t, dir, ml.NewDecisionTree(0))
	require.NoError(t, os.Rename(first, path))
	_, payload = doJSON(t, h, http.MethodGet, "/model-info", "")
	assert.Equal(t, "DecisionTree", payload["model_type"])

	second := writeArtifact(t, dir, ml.NewLinearRegression())
	require.NoError(t, os.Rename(second, path))
	_, payload = doJSON(t, h, http.MethodGet, "/model-info", "")
	assert.Equal(t, "LinearRegression", payload["model_type"])

	_, payload = doJSON(t, h, http.MethodPost, "/predict", `{"year": 2030}`)
	assert.Equal(t, "Linear Regression (GD)", payload["model"])
}

func TestOversizedBodyRejected(t *testing.T) {
	h := newTestHandler(NewPredictionService(fixedPaths(), nil))
	body := `{"year": 2020, "pad": "` + strings.Repeat("x", maxRequestBody) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
