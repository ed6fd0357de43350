package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SnapshotRow is the persisted subset of an aircraft.Aircraft written on a
// clean shutdown and read back on startup, so a restart does not have to
// wait out the full staleness window before re-learning every in-range
// aircraft's identity fields.
type SnapshotRow struct {
	ICAOHex   string
	Callsign  string
	Squawk    uint16
	Lat, Lon  float64
	HasPos    bool
	LastSeen  time.Time
}

// SQLiteDB wraps a local SQLite database used for aircraft registry
// snapshot persistence: a single file, opened read-write, with no
// concurrent-writer story beyond the one process that owns it.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a read-write SQLite database.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle
	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// CreateSchema creates the snapshot table if it does not already exist.
func (d *SQLiteDB) CreateSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS aircraft_snapshot (
			icao_hex   TEXT PRIMARY KEY,
			callsign   TEXT,
			squawk     INTEGER,
			lat        REAL,
			lon        REAL,
			has_pos    INTEGER NOT NULL DEFAULT 0,
			last_seen  INTEGER NOT NULL
		)
	`)
	return err
}

// SaveSnapshot replaces the table contents with the given rows inside one
// transaction, so a reader never observes a half-written snapshot.
func (d *SQLiteDB) SaveSnapshot(ctx context.Context, rows []SnapshotRow) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM aircraft_snapshot"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aircraft_snapshot (icao_hex, callsign, squawk, lat, lon, has_pos, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ICAOHex, r.Callsign, r.Squawk, r.Lat, r.Lon, r.HasPos, r.LastSeen.Unix()); err != nil {
			return fmt.Errorf("insert snapshot row %s: %w", r.ICAOHex, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns every row from the last SaveSnapshot call.
func (d *SQLiteDB) LoadSnapshot(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT icao_hex, callsign, squawk, lat, lon, has_pos, last_seen FROM aircraft_snapshot
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var lastSeen int64
		var hasPos int
		var callsign sql.NullString
		var squawk sql.NullInt64
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&r.ICAOHex, &callsign, &squawk, &lat, &lon, &hasPos, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		r.Callsign = callsign.String
		r.Squawk = uint16(squawk.Int64)
		r.Lat = lat.Float64
		r.Lon = lon.Float64
		r.HasPos = hasPos != 0
		r.LastSeen = time.Unix(lastSeen, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
