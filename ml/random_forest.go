package ml

import (
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RandomForest averages CART trees fitted on bootstrap resamples.
type RandomForest struct {
	NEstimators int             `json:"n_estimators"`
	Seed        int64           `json:"random_state"`
	Width       int             `json:"n_features"`
	Trees       []*DecisionTree `json:"estimators"`
}

func NewRandomForest(nEstimators int, seed int64) *RandomForest {
	return &RandomForest{NEstimators: nEstimators, Seed: seed}
}

func (rf *RandomForest) Variant() Variant { return VariantRandomForest }

func (rf *RandomForest) Fit(features [][]float64, targets []float64) error {
	width, err := checkTrainingInput(features, targets)
	if err != nil {
		return err
	}
	if rf.NEstimators <= 0 {
		rf.NEstimators = 100
	}

	// Seeds are drawn up front so parallel fitting stays reproducible.
	rng := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	trees := make([]*DecisionTree, rf.NEstimators)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			sampleX, sampleY := bootstrap(features, targets, seed)
			tree := NewDecisionTree(0)
			if err := tree.Fit(sampleX, sampleY); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.Width = width
	rf.Trees = trees
	return nil
}

func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.Trees) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != rf.Width {
		return 0, ErrFeatureWidth
	}
	var sum float64
	for _, tree := range rf.Trees {
		value, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		sum += value
	}
	return sum / float64(len(rf.Trees)), nil
}

func (rf *RandomForest) validate() error {
	if len(rf.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrInvalidModel)
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("%w: tree %d is null", ErrInvalidModel, i)
		}
		if tree.Width != rf.Width {
			return fmt.Errorf("%w: tree %d expects %d features, forest %d", ErrInvalidModel, i, tree.Width, rf.Width)
		}
		if err := tree.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func bootstrap(features [][]float64, targets []float64, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	n := len(features)
	sampleX := make([][]float64, n)
	sampleY := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := rng.Intn(n)
		sampleX[i] = features[idx]
		sampleY[i] = targets[idx]
	}
	return sampleX, sampleY
}
