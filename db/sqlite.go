package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite run log: training runs, the data-quality issues they
// hit, and an audit trail of served predictions. It never holds model state.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    artifact_id TEXT NOT NULL UNIQUE,
    artifact_path TEXT NOT NULL,
    params TEXT NOT NULL,
    cv_f1 REAL NOT NULL,
    accuracy REAL NOT NULL,
    precision REAL NOT NULL,
    recall REAL NOT NULL,
    f1 REAL NOT NULL,
    roc_auc REAL NOT NULL,
    scale_pos_weight REAL NOT NULL,
    train_rows INTEGER NOT NULL,
    test_rows INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    trained_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS data_quality (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    artifact_id TEXT NOT NULL,
    line INTEGER NOT NULL,
    issue_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT
);
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    artifact_id TEXT NOT NULL,
    request_id TEXT,
    input TEXT NOT NULL,
    prob_rain REAL NOT NULL,
    rain INTEGER NOT NULL,
    threshold REAL NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quality_artifact ON data_quality(artifact_id);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`

// Open opens the database at path and creates missing tables.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxLifetime(time.Hour)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TrainingRun is one row of the training log.
type TrainingRun struct {
	ArtifactID     string        `json:"artifact_id"`
	ArtifactPath   string        `json:"artifact_path"`
	Params         string        `json:"params"`
	CVF1           float64       `json:"cv_f1"`
	Accuracy       float64       `json:"accuracy"`
	Precision      float64       `json:"precision"`
	Recall         float64       `json:"recall"`
	F1             float64       `json:"f1"`
	ROCAUC         float64       `json:"roc_auc"`
	ScalePosWeight float64       `json:"scale_pos_weight"`
	TrainRows      int           `json:"train_rows"`
	TestRows       int           `json:"test_rows"`
	Duration       time.Duration `json:"duration"`
	TrainedAt      time.Time     `json:"trained_at"`
}

type QualityIssue struct {
	Line     int    `json:"line"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// SaveTrainingRun records a run and its data-quality issues atomically.
func (s *Store) SaveTrainingRun(ctx context.Context, run TrainingRun, issues []QualityIssue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO training_log (
            artifact_id, artifact_path, params, cv_f1, accuracy, precision, recall, f1,
            roc_auc, scale_pos_weight, train_rows, test_rows, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ArtifactID, run.ArtifactPath, run.Params, run.CVF1, run.Accuracy, run.Precision,
		run.Recall, run.F1, run.ROCAUC, run.ScalePosWeight, run.TrainRows, run.TestRows,
		run.Duration.Milliseconds(), run.TrainedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}

	if len(issues) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO data_quality (artifact_id, line, issue_type, severity, message)
            VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, issue := range issues {
			if _, err := stmt.ExecContext(ctx, run.ArtifactID, issue.Line, issue.Type, issue.Severity, issue.Message); err != nil {
				return fmt.Errorf("insert quality issue: %w", err)
			}
		}
	}
	return tx.Commit()
}

// LoadTrainingLog returns runs, newest first.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT artifact_id, artifact_path, params, cv_f1, accuracy, precision, recall, f1,
               roc_auc, scale_pos_weight, train_rows, test_rows, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var r TrainingRun
		var durationMS int64
		if err := rows.Scan(&r.ArtifactID, &r.ArtifactPath, &r.Params, &r.CVF1, &r.Accuracy,
			&r.Precision, &r.Recall, &r.F1, &r.ROCAUC, &r.ScalePosWeight, &r.TrainRows,
			&r.TestRows, &durationMS, &r.TrainedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// QualityIssues returns the data-quality issues recorded with a run.
func (s *Store) QualityIssues(ctx context.Context, artifactID string) ([]QualityIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT line, issue_type, severity, COALESCE(message, '')
        FROM data_quality
        WHERE artifact_id = ?
        ORDER BY id`, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	issues := make([]QualityIssue, 0)
	for rows.Next() {
		var q QualityIssue
		if err := rows.Scan(&q.Line, &q.Type, &q.Severity, &q.Message); err != nil {
			return nil, err
		}
		issues = append(issues, q)
	}
	return issues, rows.Err()
}

// PredictionRecord is one audited prediction.
type PredictionRecord struct {
	ArtifactID string    `json:"artifact_id"`
	RequestID  string    `json:"request_id"`
	Input      string    `json:"input"`
	ProbRain   float64   `json:"prob_rain"`
	Rain       bool      `json:"rain"`
	Threshold  float64   `json:"threshold"`
	CreatedAt  time.Time `json:"created_at"`
}

// SavePrediction appends p to the audit table.
func (s *Store) SavePrediction(ctx context.Context, p PredictionRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (artifact_id, request_id, input, prob_rain, rain, threshold, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ArtifactID, p.RequestID, p.Input, p.ProbRain, p.Rain, p.Threshold, p.CreatedAt.UTC())
	return err
}

// RecentPredictions returns up to limit audited predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT artifact_id, COALESCE(request_id, ''), input, prob_rain, rain, threshold, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var p PredictionRecord
		if err := rows.Scan(&p.ArtifactID, &p.RequestID, &p.Input, &p.ProbRain, &p.Rain, &p.Threshold, &p.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}
