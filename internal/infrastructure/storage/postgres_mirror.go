package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/ports"
)

const (
	defaultBatchSize = 500
	defaultTable     = "region_metrics"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var mirrorColumns = []string{
	"run_id",
	"region",
	"district",
	"total_enrolment",
	"youth_count",
	"demographic_volume",
	"biometric_volume",
	"mobile_update_volume",
	"ratio",
}

// PostgresMirror copies each published snapshot into a Postgres table so SQL
// consumers see the same rows as file readers.
type PostgresMirror struct {
	db        *sql.DB
	table     string
	batchSize int
	logger    *slog.Logger
}

var _ ports.SnapshotMirror = (*PostgresMirror)(nil)

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresMirror targets table, which may be schema-qualified.
func NewPostgresMirror(db *sql.DB, table string, batchSize int, log *slog.Logger) *PostgresMirror {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if strings.TrimSpace(table) == "" {
		table = defaultTable
	}
	return &PostgresMirror{db: db, table: quoteTable(table), batchSize: batchSize, logger: log}
}

// EnsureSchema creates the mirror table when it does not exist yet.
func (m *PostgresMirror) EnsureSchema(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	if _, err := m.db.ExecContext(ctx, m.createTableSQL()); err != nil {
		return fmt.Errorf("create mirror table: %w", err)
	}
	return nil
}

// Replace swaps the table contents for rows inside one transaction.
func (m *PostgresMirror) Replace(ctx context.Context, runID string, rows []domain.MetricsRow) (err error) {
	if m.db == nil {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mirror tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := m.deleteQuery()
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear mirror: %w", err)
	}

	for start := 0; start < len(rows); start += m.batchSize {
		end := min(start+m.batchSize, len(rows))
		query, args, err = m.insertQuery(runID, rows[start:end])
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert mirror rows %d-%d: %w", start, end, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit mirror: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("mirror replaced", "table", m.table, "rows", len(rows), "run_id", runID)
	}
	return nil
}

func (m *PostgresMirror) createTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + m.table + ` (
    run_id               TEXT NOT NULL,
    region               TEXT NOT NULL,
    district             TEXT NOT NULL,
    total_enrolment      DOUBLE PRECISION NOT NULL,
    youth_count          DOUBLE PRECISION NOT NULL,
    demographic_volume   DOUBLE PRECISION NOT NULL,
    biometric_volume     DOUBLE PRECISION NOT NULL,
    mobile_update_volume DOUBLE PRECISION NOT NULL,
    ratio                DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (region, district)
)`
}

func (m *PostgresMirror) deleteQuery() (string, []any, error) {
	query, args, err := psql.Delete(m.table).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build delete: %w", err)
	}
	return query, args, nil
}

func (m *PostgresMirror) insertQuery(runID string, rows []domain.MetricsRow) (string, []any, error) {
	builder := psql.Insert(m.table).Columns(mirrorColumns...)
	for _, row := range rows {
		builder = builder.Values(
			runID,
			row.Region,
			row.District,
			math.Round(row.TotalEnrolment),
			math.Round(row.YouthCount),
			math.Round(row.DemographicVolume),
			math.Round(row.BiometricVolume),
			math.Round(row.MobileUpdateVolume),
			row.Ratio,
		)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}

func quoteTable(table string) string {
	parts := strings.Split(strings.TrimSpace(table), ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}
