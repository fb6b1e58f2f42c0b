// Package repository persists the usage ledger.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/felipepmaragno/chatgw/internal/cost"
)

const schema = `
	CREATE TABLE IF NOT EXISTS usage_records (
		request_id    TEXT PRIMARY KEY,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd      DOUBLE PRECISION,
		estimated     BOOLEAN NOT NULL DEFAULT false,
		streamed      BOOLEAN NOT NULL DEFAULT false,
		status        TEXT NOT NULL,
		latency_ms    BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS usage_records_provider_created_at
		ON usage_records (provider, created_at);
`

// Open connects through the lib/pq driver and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	connector, err := pq.NewConnector(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

type PostgresUsageRepository struct {
	db *sql.DB
}

func NewPostgresUsageRepository(db *sql.DB) *PostgresUsageRepository {
	return &PostgresUsageRepository{db: db}
}

// Migrate creates the ledger table when it does not exist.
func (r *PostgresUsageRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create usage schema: %w", err)
	}
	return nil
}

// Record inserts one ledger row. Replaying a request id is a no-op.
func (r *PostgresUsageRepository) Record(ctx context.Context, record cost.UsageRecord) error {
	query := `
		INSERT INTO usage_records (request_id, provider, model, input_tokens, output_tokens, cost_usd, estimated, streamed, status, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (request_id) DO NOTHING
	`

	var costUSD sql.NullFloat64
	if record.CostUSD != nil {
		costUSD = sql.NullFloat64{Float64: *record.CostUSD, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		record.RequestID,
		record.Provider,
		record.Model,
		record.InputTokens,
		record.OutputTokens,
		costUSD,
		record.Estimated,
		record.Streamed,
		record.Status,
		record.LatencyMs,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

func (r *PostgresUsageRepository) GetProviderUsage(ctx context.Context, provider string, since time.Time) ([]cost.UsageRecord, error) {
	query := `
		SELECT request_id, provider, model, input_tokens, output_tokens, cost_usd, estimated, streamed, status, latency_ms, created_at
		FROM usage_records
		WHERE provider = $1 AND created_at > $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, provider, since)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []cost.UsageRecord
	for rows.Next() {
		var record cost.UsageRecord
		var costUSD sql.NullFloat64
		err := rows.Scan(
			&record.RequestID,
			&record.Provider,
			&record.Model,
			&record.InputTokens,
			&record.OutputTokens,
			&costUSD,
			&record.Estimated,
			&record.Streamed,
			&record.Status,
			&record.LatencyMs,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		if costUSD.Valid {
			record.CostUSD = &costUSD.Float64
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// GetProviderTotalCost sums priced rows; unpriced rows have a NULL cost.
func (r *PostgresUsageRepository) GetProviderTotalCost(ctx context.Context, provider string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM usage_records
		WHERE provider = $1 AND created_at > $2
	`

	var total float64
	err := r.db.QueryRowContext(ctx, query, provider, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query total cost: %w", err)
	}

	return total, nil
}

var _ cost.Tracker = (*PostgresUsageRepository)(nil)
