// Package training fits the candidate regressors on the synthetic dataset and
// saves the one with the lowest test error as the serving artifact.
package training

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"tempcast/config"
	"tempcast/db"
	"tempcast/ml"
)

// SampleYears are predicted with the reloaded artifact after saving.
var SampleYears = []int{2019, 2025, 2030}

// RunRecorder persists a finished run. *db.Store satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run db.TrainingRun) error
}

type Options struct {
	Dataset    ml.DatasetConfig
	Seed       int64
	TestRatio  float64
	Estimators int
	OutputDir  string
	Extension  string
	Recorder   RunRecorder
	Logger     *zap.Logger
	Now        func() time.Time
}

// OptionsFromConfig maps the training section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dataset: ml.DatasetConfig{
			StartYear: cfg.Training.StartYear,
			EndYear:   cfg.Training.EndYear,
			Slope:     cfg.Training.Slope,
			NoiseStd:  cfg.Training.NoiseStd,
		},
		Seed:       cfg.Training.Seed,
		TestRatio:  cfg.Training.TestRatio,
		Estimators: cfg.Training.Estimators,
		OutputDir:  cfg.Training.OutputDir,
		Extension:  cfg.Artifact.Extension,
	}
}

type Score struct {
	Variant ml.Variant
	Name    string
	MSE     float64
}

type DatasetSummary struct {
	Count     int
	MinYear   int
	MaxYear   int
	MinChange float64
	MaxChange float64
}

type SamplePrediction struct {
	Year   int
	Change float64
}

type Report struct {
	RunID        string
	Dataset      DatasetSummary
	TrainSize    int
	TestSize     int
	Scores       []Score
	Best         Score
	ArtifactPath string
	Predictions  []SamplePrediction
	TrainedAt    time.Time
}

// Run trains every variant, keeps the best one on disk and returns a report.
// Any fit or scoring failure aborts the run.
func Run(ctx context.Context, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	report := &Report{RunID: uuid.NewString()}
	logger = logger.With(zap.String("run_id", report.RunID))

	samples, err := ml.GenerateSamples(opts.Dataset, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("generate samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, ml.ErrEmptyDataset
	}
	report.Dataset = summarize(samples)
	logger.Info("dataset generated",
		zap.Int("records", report.Dataset.Count),
		zap.Int("min_year", report.Dataset.MinYear),
		zap.Int("max_year", report.Dataset.MaxYear),
		zap.Float64("min_change", report.Dataset.MinChange),
		zap.Float64("max_change", report.Dataset.MaxChange))

	train, test := ml.TrainTestSplit(samples, opts.TestRatio, opts.Seed)
	if len(train) == 0 || len(test) == 0 {
		return nil, fmt.Errorf("split of %d samples left an empty partition", len(samples))
	}
	report.TrainSize, report.TestSize = len(train), len(test)
	trainX, trainY := ml.Features(train), ml.Targets(train)
	testX, testY := ml.Features(test), ml.Targets(test)

	models := make(map[ml.Variant]ml.Regressor, len(ml.Variants()))
	for _, variant := range ml.Variants() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		model, err := newCandidate(variant, opts)
		if err != nil {
			return nil, err
		}
		logger.Info("training model", zap.String("model", variant.DisplayName()))
		if err := model.Fit(trainX, trainY); err != nil {
			return nil, fmt.Errorf("fit %s: %w", variant.DisplayName(), err)
		}
		mse, err := ml.Evaluate(model, testX, testY)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", variant.DisplayName(), err)
		}
		logger.Info("model scored", zap.String("model", variant.DisplayName()), zap.Float64("mse", mse))
		models[variant] = model
		report.Scores = append(report.Scores, Score{Variant: variant, Name: variant.DisplayName(), MSE: mse})
	}

	best, err := SelectBest(report.Scores)
	if err != nil {
		return nil, err
	}
	report.Best = best

	report.TrainedAt = now().UTC()
	path := filepath.Join(opts.OutputDir, ml.ArtifactFileName(best.Name, opts.Extension))
	if err := ml.SaveArtifact(path, models[best.Variant], best.MSE, report.TrainedAt); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	report.ArtifactPath = path
	logger.Info("artifact saved", zap.String("model", best.Name), zap.String("path", path))

	// 重新加载已保存的模型做一次冒烟预测
	artifact, err := ml.LoadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("reload artifact: %w", err)
	}
	for _, year := range SampleYears {
		value, err := artifact.Model.Predict([]float64{float64(year)})
		if err != nil {
			return nil, fmt.Errorf("sample prediction for %d: %w", year, err)
		}
		report.Predictions = append(report.Predictions, SamplePrediction{Year: year, Change: value})
	}

	if opts.Recorder != nil {
		if err := opts.Recorder.RecordRun(ctx, report.trainingRun(opts.Seed)); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}
	return report, nil
}

// SelectBest returns the lowest-MSE score; on ties the earliest entry wins.
func SelectBest(scores []Score) (Score, error) {
	if len(scores) == 0 {
		return Score{}, errors.New("no scores to select from")
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.MSE < best.MSE {
			best = s
		}
	}
	return best, nil
}

func newCandidate(variant ml.Variant, opts Options) (ml.Regressor, error) {
	if variant == ml.VariantRandomForest && opts.Estimators > 0 {
		return ml.NewRandomForest(opts.Estimators, opts.Seed), nil
	}
	return ml.NewRegressor(variant, opts.Seed)
}

func summarize(samples []ml.Sample) DatasetSummary {
	changes := ml.Targets(samples)
	summary := DatasetSummary{
		Count:     len(samples),
		MinYear:   samples[0].Year,
		MaxYear:   samples[0].Year,
		MinChange: floats.Min(changes),
		MaxChange: floats.Max(changes),
	}
	for _, s := range samples[1:] {
		summary.MinYear = min(summary.MinYear, s.Year)
		summary.MaxYear = max(summary.MaxYear, s.Year)
	}
	return summary
}

func (r *Report) trainingRun(seed int64) db.TrainingRun {
	run := db.TrainingRun{
		RunID:        r.RunID,
		BestModel:    r.Best.Name,
		BestMSE:      r.Best.MSE,
		ArtifactPath: r.ArtifactPath,
		Seed:         seed,
		TrainSize:    r.TrainSize,
		TestSize:     r.TestSize,
		TrainedAt:    r.TrainedAt,
	}
	for _, s := range r.Scores {
		run.Scores = append(run.Scores, db.ModelScore{ModelName: s.Name, MSE: s.MSE})
	}
	return run
}
