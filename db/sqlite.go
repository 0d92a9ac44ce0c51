package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store keeps a log of trainer runs in SQLite.
type Store struct {
	db *sqlx.DB
}

type TrainingRun struct {
	RunID        string       `db:"run_id" json:"run_id"`
	BestModel    string       `db:"best_model" json:"best_model"`
	BestMSE      float64      `db:"best_mse" json:"best_mse"`
	ArtifactPath string       `db:"artifact_path" json:"artifact_path"`
	Seed         int64        `db:"seed" json:"seed"`
	TrainSize    int          `db:"train_size" json:"train_size"`
	TestSize     int          `db:"test_size" json:"test_size"`
	TrainedAt    time.Time    `db:"trained_at" json:"trained_at"`
	Scores       []ModelScore `db:"-" json:"scores"`
}

type ModelScore struct {
	ModelName string  `db:"model_name" json:"model_name"`
	MSE       float64 `db:"mse" json:"mse"`
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Store{db: conn}, nil
}

func migrateUp(conn *sqlx.DB) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := msqlite.WithInstance(conn.DB, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// m.Close would close conn as well, so only the source is released.
	defer source.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun saves a run and its per-model scores in one transaction.
func (s *Store) RecordRun(ctx context.Context, run TrainingRun) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.NamedExecContext(ctx, `
        INSERT INTO training_runs (
            run_id, best_model, best_mse, artifact_path, seed, train_size, test_size, trained_at
        ) VALUES (
            :run_id, :best_model, :best_mse, :artifact_path, :seed, :train_size, :test_size, :trained_at
        )`, run)
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, score := range run.Scores {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO training_scores (run_id, model_name, mse)
            VALUES (?, ?, ?)`,
			run.RunID, score.ModelName, score.MSE)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := make([]TrainingRun, 0)
	err := s.db.SelectContext(ctx, &runs, `
        SELECT run_id, best_model, best_mse, artifact_path, seed, train_size, test_size, trained_at
        FROM training_runs
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	for i := range runs {
		scores := make([]ModelScore, 0)
		err := s.db.SelectContext(ctx, &scores, `
            SELECT model_name, mse
            FROM training_scores
            WHERE run_id = ?
            ORDER BY id`, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Scores = scores
	}
	return runs, nil
}
