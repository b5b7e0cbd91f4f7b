package ports

import (
	"context"
	"time"

	"RegionMetrics/internal/domain"
)

// RecordSource reads one category's raw batch.
type RecordSource interface {
	Load(ctx context.Context, category domain.Category) (domain.Batch, error)
}

// SnapshotWriter publishes the authoritative snapshot; failures abort the run.
type SnapshotWriter interface {
	Write(ctx context.Context, rows []domain.MetricsRow, manifest domain.Manifest) (domain.Manifest, error)
}

// SnapshotMirror copies a published snapshot into secondary storage.
type SnapshotMirror interface {
	Replace(ctx context.Context, runID string, rows []domain.MetricsRow) error
}

// SnapshotSource gives readers the currently published rows.
type SnapshotSource interface {
	Load() ([]domain.MetricsRow, error)
}

// Forecaster projects future update volume for a canonical region.
type Forecaster interface {
	Forecast(ctx context.Context, region string, volume float64) (domain.Projection, error)
}

// Notifier streams run reports to Telegram or other channels.
type Notifier interface {
	PublishReport(ctx context.Context, report string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
