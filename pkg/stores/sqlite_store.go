package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements WorkflowStore and JobStore on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// SQLiteConfig holds SQLite store configuration.
type SQLiteConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded filesystem.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "null", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json column: %w", err)
	}
	return string(data), nil
}

func (s *SQLiteStore) CreateWorkflow(ctx context.Context, record *WorkflowRecord) (int64, error) {
	steps, err := marshalJSON(record.StepsCompleted)
	if err != nil {
		return 0, err
	}
	outputs, err := marshalJSON(record.Outputs)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO workflows (project_name, template_name, platform, status, current_step, steps_completed, outputs, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		record.ProjectName,
		record.TemplateName,
		record.Platform,
		record.Status,
		record.CurrentStep,
		steps,
		outputs,
		record.Error,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create workflow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get workflow id: %w", err)
	}
	record.ID = id
	return id, nil
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id int64) (*WorkflowRecord, error) {
	query := `
		SELECT id, project_name, template_name, platform, status, current_step, steps_completed, outputs, error, created_at, updated_at
		FROM workflows
		WHERE id = ?
	`

	record := &WorkflowRecord{}
	var steps, outputs string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.ProjectName,
		&record.TemplateName,
		&record.Platform,
		&record.Status,
		&record.CurrentStep,
		&steps,
		&outputs,
		&record.Error,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if err := json.Unmarshal([]byte(steps), &record.StepsCompleted); err != nil {
		return nil, fmt.Errorf("decoding steps column: %w", err)
	}
	if err := json.Unmarshal([]byte(outputs), &record.Outputs); err != nil {
		return nil, fmt.Errorf("decoding outputs column: %w", err)
	}
	return record, nil
}

func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, record *WorkflowRecord) error {
	steps, err := marshalJSON(record.StepsCompleted)
	if err != nil {
		return err
	}
	outputs, err := marshalJSON(record.Outputs)
	if err != nil {
		return err
	}

	record.UpdatedAt = time.Now()
	query := `
		UPDATE workflows
		SET status = ?, current_step = ?, steps_completed = ?, outputs = ?, error = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		record.Status,
		record.CurrentStep,
		steps,
		outputs,
		record.Error,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) (string, error) {
	outputs, err := marshalJSON(job.Outputs)
	if err != nil {
		return "", err
	}

	job.Token = uuid.NewString()
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO jobs (token, project_name, resource_type, status, status_code, message, outputs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		job.Token,
		job.ProjectName,
		job.ResourceType,
		job.Status,
		job.StatusCode,
		job.Message,
		outputs,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return job.Token, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, token string) (*Job, error) {
	query := `
		SELECT token, project_name, resource_type, status, status_code, message, outputs, created_at, updated_at
		FROM jobs
		WHERE token = ?
	`

	job := &Job{}
	var outputs string
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&job.Token,
		&job.ProjectName,
		&job.ResourceType,
		&job.Status,
		&job.StatusCode,
		&job.Message,
		&outputs,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if err := json.Unmarshal([]byte(outputs), &job.Outputs); err != nil {
		return nil, fmt.Errorf("decoding outputs column: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) finishJob(ctx context.Context, token string, status Status, statusCode int, message string, outputs map[string]interface{}) error {
	encoded, err := marshalJSON(outputs)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = ?, status_code = ?, message = ?, outputs = ?, updated_at = ?
		WHERE token = ?
	`
	result, err := s.db.ExecContext(ctx, query, status, statusCode, message, encoded, time.Now(), token)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SucceedJob(ctx context.Context, token string, statusCode int, outputs map[string]interface{}) error {
	return s.finishJob(ctx, token, StatusSuccess, statusCode, "", outputs)
}

func (s *SQLiteStore) FailJob(ctx context.Context, token string, statusCode int, message string) error {
	return s.finishJob(ctx, token, StatusFailed, statusCode, message, nil)
}
