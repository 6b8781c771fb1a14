package storage

import (
	"context"

	"github.com/opscart/rds-idle-manager/pkg/models"
)

// Store persists sweep history. Persistence is an opt-in concern of the
// CLI/server layer; the orchestrator itself only returns reports.
type Store interface {
	SaveSweep(ctx context.Context, report *models.SweepReport) error
	GetSweep(ctx context.Context, id string) (*models.SweepReport, error)

	// ListSweeps returns report headers, newest first, without outcomes.
	ListSweeps(ctx context.Context, limit int) ([]*models.SweepReport, error)

	Ping(ctx context.Context) error
	Close() error
}
