package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"
)

const DefaultArtifactExt = ".model"

// Artifact is a trained regressor plus the metadata it was saved with.
type Artifact struct {
	Variant   Variant
	Name      string
	MSE       float64
	TrainedAt time.Time
	Model     Regressor
}

type artifactFile struct {
	Variant   Variant         `json:"variant"`
	Name      string          `json:"name"`
	MSE       float64         `json:"mse"`
	TrainedAt time.Time       `json:"trained_at"`
	Model     json.RawMessage `json:"model"`
}

// ArtifactFileName derives the file name from a variant display name, e.g. "Random Forest.model".
func ArtifactFileName(name, ext string) string {
	if ext == "" {
		ext = DefaultArtifactExt
	}
	return name + ext
}

func SaveArtifact(path string, model Regressor, mse float64, trainedAt time.Time) error {
	if model == nil {
		return errors.New("model is nil")
	}
	payload, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	envelope, err := json.MarshalIndent(artifactFile{
		Variant:   model.Variant(),
		Name:      model.Variant().DisplayName(),
		MSE:       mse,
		TrainedAt: trainedAt.UTC(),
		Model:     payload,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, envelope, 0o644)
}

func LoadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file artifactFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	model, err := LoadModel(file.Variant, file.Model)
	if err != nil {
		return nil, err
	}
	name := file.Name
	if name == "" {
		name = file.Variant.DisplayName()
	}
	return &Artifact{
		Variant:   file.Variant,
		Name:      name,
		MSE:       file.MSE,
		TrainedAt: file.TrainedAt,
		Model:     model,
	}, nil
}

func LoadModel(variant Variant, payload []byte) (Regressor, error) {
	var model Regressor
	switch variant {
	case VariantLinear:
		model = &LinearRegression{}
	case VariantRandomForest:
		model = &RandomForest{}
	case VariantDecisionTree:
		model = &DecisionTree{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	if len(payload) == 0 {
		return nil, errors.New("artifact has no model payload")
	}
	if err := json.Unmarshal(payload, model); err != nil {
		return nil, fmt.Errorf("decode %s: %w", variant, err)
	}
	if v, ok := model.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("decode %s: %w", variant, err)
		}
	}
	return model, nil
}

// TypeName reports the concrete type behind a regressor, e.g. "RandomForest".
func TypeName(model Regressor) string {
	t := reflect.TypeOf(model)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
