package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "training.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestRecordAndListRuns(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	older := TrainingRun{
		RunID:        uuid.NewString(),
		BestModel:    "Decision Tree",
		BestMSE:      0.12,
		ArtifactPath: "Decision Tree.model",
		Seed:         1,
		TrainSize:    48,
		TestSize:     12,
		TrainedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Scores: []ModelScore{
			{ModelName: "Linear Regression (GD)", MSE: 0.2},
			{ModelName: "Random Forest", MSE: 0.15},
			{ModelName: "Decision Tree", MSE: 0.12},
		},
	}
	newer := older
	newer.RunID = uuid.NewString()
	newer.BestModel = "Random Forest"
	newer.TrainedAt = older.TrainedAt.Add(time.Hour)
	newer.Scores = []ModelScore{{ModelName: "Random Forest", MSE: 0.1}}

	require.NoError(t, store.RecordRun(ctx, older))
	require.NoError(t, store.RecordRun(ctx, newer))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].RunID)
	assert.Equal(t, "Random Forest", runs[0].BestModel)
	assert.Len(t, runs[0].Scores, 1)
	assert.Equal(t, older.Scores, runs[1].Scores)
	assert.True(t, older.TrainedAt.Equal(runs[1].TrainedAt))

	limited, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRunRejectsDuplicateScoreAtomically(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	run := TrainingRun{
		RunID:     uuid.NewString(),
		BestModel: "Random Forest",
		TrainedAt: time.Now().UTC(),
		Scores: []ModelScore{
			{ModelName: "Random Forest", MSE: 0.1},
			{ModelName: "Random Forest", MSE: 0.2},
		},
	}
	assert.Error(t, store.RecordRun(ctx, run))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	assert.Error(t, store.RecordRun(ctx, TrainingRun{}))
}

func TestOpenIsIdempotent(t *testing.T) {
	store, path := openTestStore(t)
	require.NoError(t, store.RecordRun(context.Background(), TrainingRun{
		RunID:     uuid.NewString(),
		BestModel: "Decision Tree",
		TrainedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
