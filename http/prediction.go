package http

import (
	"errors"
	"fmt"
	"math"

	"tempcast/ml"
)

const (
	PredictionUnit = "degrees Celsius change"
	OutputName     = "temperature_change_celsius"
	YearRange      = "1960-2030"
	MinYear        = 1960
	MaxYear        = 2030
)

// LoadError 模型文件存在但无法反序列化
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("Error loading the model from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InferenceError 模型加载成功但预测失败
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("Error during prediction: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

type PredictResponse struct {
	Year       int     `json:"year"`
	Prediction float64 `json:"prediction"`
	Unit       string  `json:"unit"`
	Model      string  `json:"model"`
}

type ModelInfoResponse struct {
	ModelType     string   `json:"model_type"`
	ModelPath     string   `json:"model_path"`
	InputFeatures []string `json:"input_features"`
	Output        string   `json:"output"`
	YearRange     string   `json:"year_range"`
}

// ArtifactLoader reads an artifact from disk.
type ArtifactLoader func(path string) (*ml.Artifact, error)

// PredictionService locates and loads the artifact on every call. Nothing is cached
// so a retrained artifact is picked up by the next request.
type PredictionService struct {
	locate ml.LocateFunc
	load   ArtifactLoader
}

func NewPredictionService(locate ml.LocateFunc, load ArtifactLoader) *PredictionService {
	if load == nil {
		load = ml.LoadArtifact
	}
	return &PredictionService{locate: locate, load: load}
}

func (s *PredictionService) open() (string, *ml.Artifact, error) {
	path, err := s.locate()
	if err != nil {
		return "", nil, err
	}
	artifact, err := s.load(path)
	if err != nil {
		return path, nil, &LoadError{Path: path, Err: err}
	}
	if artifact == nil || artifact.Model == nil {
		return path, nil, &LoadError{Path: path, Err: errors.New("artifact has no model")}
	}
	return path, artifact, nil
}

// Predict runs locate, load and predict for a year that has already been validated.
func (s *PredictionService) Predict(year int) (*PredictResponse, error) {
	_, artifact, err := s.open()
	if err != nil {
		return nil, err
	}

	value, err := artifact.Model.Predict([]float64{float64(year)})
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &InferenceError{Err: fmt.Errorf("non-finite prediction %v", value)}
	}

	name := artifact.Name
	if name == "" {
		name = artifact.Variant.DisplayName()
	}
	return &PredictResponse{
		Year:       year,
		Prediction: value,
		Unit:       PredictionUnit,
		Model:      name,
	}, nil
}

func (s *PredictionService) ModelInfo() (*ModelInfoResponse, error) {
	path, artifact, err := s.open()
	if err != nil {
		return nil, err
	}
	return &ModelInfoResponse{
		ModelType:     ml.TypeName(artifact.Model),
		ModelPath:     path,
		InputFeatures: []string{"year"},
		Output:        OutputName,
		YearRange:     YearRange,
	}, nil
}
