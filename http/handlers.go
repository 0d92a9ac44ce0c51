package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"tempcast/ml"
)

const (
	rootMessage = "Temperature Change Prediction API is running!"
	serviceName = "Temperature Prediction API"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// Handlers 预测服务的HTTP处理器
type Handlers struct {
	service *PredictionService
	logger  *zap.Logger
}

func NewHandlers(service *PredictionService, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{service: service, logger: logger}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /model-info", h.handleModelInfo)
}

func (h *Handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": rootMessage, "status": "healthy"})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, details := ParsePredictRequest(r.Body)
	if len(details) > 0 {
		respondJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{Detail: details})
		return
	}

	// 失败也返回200，错误信息放在error字段
	resp, err := h.service.Predict(*req.Year)
	if err != nil {
		h.logger.Warn("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Int("year", *req.Year),
			zap.Error(err))
		respondJSON(w, http.StatusOK, ErrorResponse{Error: predictErrorMessage(err)})
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.ModelInfo()
	if err != nil {
		h.logger.Warn("model info failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		respondJSON(w, http.StatusOK, ErrorResponse{Error: modelInfoErrorMessage(err)})
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func predictErrorMessage(err error) string {
	var notFound *ml.NotFoundError
	if errors.As(err, &notFound) {
		return notFoundMessage(notFound.Searched)
	}
	if errors.Is(err, ml.ErrArtifactNotFound) {
		return notFoundMessage(nil)
	}
	return err.Error()
}

func modelInfoErrorMessage(err error) string {
	if errors.Is(err, ml.ErrArtifactNotFound) {
		return "Model file not found"
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return fmt.Sprintf("Error loading model info: %v", loadErr.Err)
	}
	return fmt.Sprintf("Error loading model info: %v", err)
}

func notFoundMessage(searched []string) string {
	quoted := make([]string, len(searched))
	for i, path := range searched {
		quoted[i] = "'" + path + "'"
	}
	name := "the model file"
	if len(searched) > 0 {
		name = filepath.Base(searched[0])
	}
	return fmt.Sprintf("Model file not found. Searched in: [%s]. Please ensure '%s' exists in one of these locations.",
		strings.Join(quoted, ", "), name)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode JSON", zap.Error(err))
	}
}
