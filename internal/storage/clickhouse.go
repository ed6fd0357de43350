// Package storage persists decoded Mode S state: ClickHouse holds the
// append-only archive of decoded messages and frozen trace chunks,
// PostgreSQL holds the mutable aircraft identity/track-point reference
// data, and SQLite holds a single-process on-disk snapshot for restart
// recovery without an external database.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection used as the archival store
// for decoded messages and frozen trace chunks.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS decoded_messages (
			recv_time       DateTime64(3),
			icao_hex        LowCardinality(String),
			df              UInt8,
			me_type         UInt8,
			source          LowCardinality(String),
			corrected_bits  UInt8,
			raw_hex         String,
			decoded_json    String,
			created_at      DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(recv_time)
		ORDER BY (icao_hex, recv_time)
		SETTINGS index_granularity = 8192`,

		`CREATE TABLE IF NOT EXISTS trace_chunks (
			icao_hex        LowCardinality(String),
			chunk_start     DateTime64(3),
			chunk_end       DateTime64(3),
			point_count     UInt32,
			payload         String,
			recorded_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(chunk_start)
		ORDER BY (icao_hex, chunk_start)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// DecodedMessage is a decoded message row as stored in ClickHouse.
type DecodedMessage struct {
	RecvTime      time.Time
	ICAOHex       string
	DF            uint8
	METype        uint8
	Source        string
	CorrectedBits uint8
	RawHex        string
	DecodedJSON   string
	CreatedAt     time.Time
}

// InsertParams contains parameters for archiving one decoded message.
type InsertParams struct {
	RecvTime      time.Time
	ICAOHex       string
	DF            uint8
	METype        uint8
	Source        string
	CorrectedBits uint8
	RawHex        string
	Decoded       interface{}
}

// Insert stores a single decoded message in ClickHouse.
func (d *ClickHouseDB) Insert(ctx context.Context, p InsertParams) error {
	decodedJSON, err := json.Marshal(p.Decoded)
	if err != nil {
		return fmt.Errorf("marshal decoded message: %w", err)
	}

	err = d.conn.Exec(ctx, `
		INSERT INTO decoded_messages (recv_time, icao_hex, df, me_type, source, corrected_bits, raw_hex, decoded_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.RecvTime, p.ICAOHex, p.DF, p.METype, p.Source, p.CorrectedBits, p.RawHex, string(decodedJSON))
	if err != nil {
		return fmt.Errorf("insert decoded message: %w", err)
	}
	return nil
}

// InsertBatch stores multiple decoded messages in one round trip, since
// ClickHouse favors large batched inserts over row-at-a-time writes.
// cmd/readsb-core does not call it; it archives each message with Insert.
func (d *ClickHouseDB) InsertBatch(ctx context.Context, messages []InsertParams) error {
	if len(messages) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO decoded_messages (recv_time, icao_hex, df, me_type, source, corrected_bits, raw_hex, decoded_json)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range messages {
		decodedJSON, err := json.Marshal(p.Decoded)
		if err != nil {
			return fmt.Errorf("marshal decoded message: %w", err)
		}
		if err := batch.Append(p.RecvTime, p.ICAOHex, p.DF, p.METype, p.Source, p.CorrectedBits, p.RawHex, string(decodedJSON)); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// QueryParams filters a decoded-message query.
type QueryParams struct {
	ICAOHex string
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Query returns decoded messages matching the given filters, most recent
// first.
func (d *ClickHouseDB) Query(ctx context.Context, p QueryParams) ([]DecodedMessage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 1000
	}
	var untilUnix int64 // 0 == no upper bound
	if !p.Until.IsZero() {
		untilUnix = p.Until.Unix()
	}

	rows, err := d.conn.Query(ctx, `
		SELECT recv_time, icao_hex, df, me_type, source, corrected_bits, raw_hex, decoded_json, created_at
		FROM decoded_messages
		WHERE icao_hex = ? AND recv_time >= ? AND (? = 0 OR recv_time <= ?)
		ORDER BY recv_time DESC
		LIMIT ?
	`, p.ICAOHex, p.Since, untilUnix, p.Until, limit)
	if err != nil {
		return nil, fmt.Errorf("query decoded messages: %w", err)
	}
	defer rows.Close()

	var out []DecodedMessage
	for rows.Next() {
		var m DecodedMessage
		if err := rows.Scan(&m.RecvTime, &m.ICAOHex, &m.DF, &m.METype, &m.Source, &m.CorrectedBits, &m.RawHex, &m.DecodedJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decoded message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertTraceChunk archives one frozen, zstd-compressed trace-ring chunk
// (internal/trace.Ring.freeze output) for long-term storage.
func (d *ClickHouseDB) InsertTraceChunk(ctx context.Context, icaoHex string, chunkStart, chunkEnd time.Time, pointCount uint32, payload []byte) error {
	return d.conn.Exec(ctx, `
		INSERT INTO trace_chunks (icao_hex, chunk_start, chunk_end, point_count, payload)
		VALUES (?, ?, ?, ?, ?)
	`, icaoHex, chunkStart, chunkEnd, pointCount, string(payload))
}

// Stats summarizes the decoded-message archive.
type Stats struct {
	TotalMessages  uint64
	DistinctICAO   uint64
	EarliestRecv   time.Time
	LatestRecv     time.Time
}

// GetStats returns summary counters over the whole archive.
func (d *ClickHouseDB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	row := d.conn.QueryRow(ctx, `
		SELECT count(), uniqExact(icao_hex), min(recv_time), max(recv_time)
		FROM decoded_messages
	`)
	if err := row.Scan(&s.TotalMessages, &s.DistinctICAO, &s.EarliestRecv, &s.LatestRecv); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &s, nil
}

// CountBySource returns message counts grouped by data source.
func (d *ClickHouseDB) CountBySource(ctx context.Context) (map[string]uint64, error) {
	rows, err := d.conn.Query(ctx, `SELECT source, count() FROM decoded_messages GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var source string
		var n uint64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		out[source] = n
	}
	return out, rows.Err()
}
