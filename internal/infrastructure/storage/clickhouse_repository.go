package storage

import (
	"context"
	"fmt"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseRepository implements TransitionJournal and AggregateHistory using
// ClickHouse as the backend. It keeps an append-only audit of local lifecycle
// transitions and periodic bookrunner roll-up snapshots.
type ClickHouseRepository struct {
	conn driver.Conn
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Timeout  int
}

func NewClickHouseRepository(cfg ClickHouseConfig) (*ClickHouseRepository, error) {
	database := cfg.Database
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: time.Duration(cfg.Timeout) * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	// Check the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	// Ensure tables exist
	if err := createTablesIfNotExist(conn); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &ClickHouseRepository{conn: conn}, nil
}

// Ensure ClickHouseRepository implements both required interfaces
var _ repository.TransitionJournal = (*ClickHouseRepository)(nil)
var _ repository.AggregateHistory = (*ClickHouseRepository)(nil)

func createTablesIfNotExist(conn driver.Conn) error {
	err := conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS bond_transitions (
			record_id String,
			isin String,
			action LowCardinality(String),
			from_status LowCardinality(String),
			to_status LowCardinality(String),
			outcome LowCardinality(String),
			error String,
			at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (at, record_id)
	`)
	if err != nil {
		return err
	}

	err = conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS bookrunner_snapshots (
			snapshot_at DateTime64(3),
			currency LowCardinality(String),
			name String,
			deal_count UInt32,
			market_share Float64,
			last_active String
		) ENGINE = MergeTree()
		ORDER BY (snapshot_at, currency, name)
	`)

	return err
}

// RecordTransition appends a transition outcome to the journal
func (r *ClickHouseRepository) RecordTransition(ctx context.Context, entry model.TransitionEntry) error {
	query := `
		INSERT INTO bond_transitions (
			record_id, isin, action, from_status, to_status, outcome, error, at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?
		)
	`

	return r.conn.AsyncInsert(ctx, query, false,
		entry.RecordID,
		entry.ISIN,
		entry.Action,
		string(entry.FromStatus),
		string(entry.ToStatus),
		entry.Outcome,
		entry.Error,
		entry.At,
	)
}

// TransitionsSince retrieves journal entries at or after since, oldest first
func (r *ClickHouseRepository) TransitionsSince(ctx context.Context, since time.Time) ([]model.TransitionEntry, error) {
	query := `
		SELECT record_id, isin, action, from_status, to_status, outcome, error, at
		FROM bond_transitions
		WHERE at >= ?
		ORDER BY at
	`

	rows, err := r.conn.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.TransitionEntry
	for rows.Next() {
		var (
			entry    model.TransitionEntry
			from, to string
		)
		if err := rows.Scan(
			&entry.RecordID,
			&entry.ISIN,
			&entry.Action,
			&from,
			&to,
			&entry.Outcome,
			&entry.Error,
			&entry.At,
		); err != nil {
			return nil, err
		}
		entry.FromStatus = model.Status(from)
		entry.ToStatus = model.Status(to)
		results = append(results, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// SaveAggregates writes one snapshot row per bookrunner in a single batch
func (r *ClickHouseRepository) SaveAggregates(ctx context.Context, at time.Time, currency string, aggs []model.BookrunnerAggregate) error {
	if len(aggs) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO bookrunner_snapshots")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, agg := range aggs {
		if err := batch.Append(
			at,
			currency,
			agg.Name,
			uint32(agg.DealCount),
			agg.MarketSharePercent,
			agg.LastActiveDate,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append aggregate %s: %w", agg.Name, err)
		}
	}

	return batch.Send()
}

// LatestAggregates returns the most recent snapshot for currency
func (r *ClickHouseRepository) LatestAggregates(ctx context.Context, currency string) ([]model.BookrunnerAggregate, error) {
	query := `
		SELECT name, deal_count, market_share, last_active
		FROM bookrunner_snapshots
		WHERE currency = ? AND snapshot_at = (
			SELECT max(snapshot_at) FROM bookrunner_snapshots WHERE currency = ?
		)
		ORDER BY deal_count DESC, name
	`

	rows, err := r.conn.Query(ctx, query, currency, currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.BookrunnerAggregate
	for rows.Next() {
		var (
			agg   model.BookrunnerAggregate
			count uint32
		)
		if err := rows.Scan(&agg.Name, &count, &agg.MarketSharePercent, &agg.LastActiveDate); err != nil {
			return nil, err
		}
		agg.DealCount = int(count)
		results = append(results, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (r *ClickHouseRepository) Close() error {
	return r.conn.Close()
}
