package ml

import (
	"errors"
	"math"
	"math/rand"
)

type Sample struct {
	Year   int     `json:"year"`
	Change float64 `json:"change"`
}

type DatasetConfig struct {
	StartYear int
	EndYear   int
	Slope     float64
	NoiseStd  float64
}

func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{StartYear: 1961, EndYear: 2020, Slope: 0.02, NoiseStd: 0.3}
}

// GenerateSamples simulates a linear warming trend with gaussian noise.
func GenerateSamples(cfg DatasetConfig, seed int64) ([]Sample, error) {
	if cfg.EndYear < cfg.StartYear {
		return nil, errors.New("end year before start year")
	}
	if cfg.NoiseStd < 0 {
		return nil, errors.New("noise stddev must be non-negative")
	}

	rng := rand.New(rand.NewSource(seed))
	samples := make([]Sample, 0, cfg.EndYear-cfg.StartYear+1)
	for year := cfg.StartYear; year <= cfg.EndYear; year++ {
		base := float64(year-cfg.StartYear) * cfg.Slope
		noise := rng.NormFloat64() * cfg.NoiseStd
		samples = append(samples, Sample{Year: year, Change: base + noise})
	}
	return samples, nil
}

// TrainTestSplit shuffles with the given seed and puts ceil(n*testRatio) rows in the test set.
func TrainTestSplit(samples []Sample, testRatio float64, seed int64) (train, test []Sample) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rng := rand.New(rand.NewSource(seed))
	indices := rng.Perm(len(samples))

	testSize := int(math.Ceil(float64(len(samples)) * testRatio))
	for i, idx := range indices {
		if i < testSize {
			test = append(test, samples[idx])
		} else {
			train = append(train, samples[idx])
		}
	}
	return train, test
}

func Features(samples []Sample) [][]float64 {
	out := make([][]float64, len(samples))
	for i, s := range samples {
		out[i] = []float64{float64(s.Year)}
	}
	return out
}

func Targets(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Change
	}
	return out
}
