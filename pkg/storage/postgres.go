package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/opscart/rds-idle-manager/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// SaveSweep saves a sweep report and its outcomes in one transaction
func (s *PostgresStore) SaveSweep(ctx context.Context, report *models.SweepReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps (id, started_at, finished_at, resource_count, stop_count)
		VALUES ($1, $2, $3, $4, $5)
	`, report.ID, report.StartedAt, report.FinishedAt, len(report.Outcomes), report.Stops())
	if err != nil {
		return err
	}

	for i, out := range report.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sweep_actions (id, sweep_id, position, resource_id, resource_type, action, success, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New().String(), report.ID, i, out.ResourceID, string(out.ResourceType), string(out.Action), out.Success, out.Message)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSweep retrieves one sweep report with its outcomes in sweep order
func (s *PostgresStore) GetSweep(ctx context.Context, id string) (*models.SweepReport, error) {
	var report models.SweepReport

	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at
		FROM sweeps
		WHERE id = $1
	`, id).Scan(&report.ID, &report.StartedAt, &report.FinishedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sweep not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, resource_type, action, success, message
		FROM sweep_actions
		WHERE sweep_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var out models.ActionOutcome
		var resourceType, action string

		if err := rows.Scan(&out.ResourceID, &resourceType, &action, &out.Success, &out.Message); err != nil {
			return nil, err
		}
		out.ResourceType = models.ResourceKind(resourceType)
		out.Action = models.ActionKind(action)
		report.Outcomes = append(report.Outcomes, out)
	}

	return &report, rows.Err()
}

// ListSweeps retrieves recent sweep headers, newest first
func (s *PostgresStore) ListSweeps(ctx context.Context, limit int) ([]*models.SweepReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at
		FROM sweeps
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*models.SweepReport
	for rows.Next() {
		var report models.SweepReport
		if err := rows.Scan(&report.ID, &report.StartedAt, &report.FinishedAt); err != nil {
			return nil, err
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
