package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // SSL mode (disable, require, verify-ca, verify-full). Default: disable.
}

// PostgresDB wraps a PostgreSQL connection pool used as the registry's
// reference/identity store: aircraft identity rows and the recorded track
// points that feed exports like tools/kmlexport.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, escapedPassword, cfg.Host, cfg.Port, cfg.Database, sslMode)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS aircraft_identity (
		icao_hex        TEXT PRIMARY KEY,
		registration    TEXT,
		type_code       TEXT,
		operator        TEXT,
		first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		msg_count       BIGINT NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_aircraft_identity_registration ON aircraft_identity(registration);

	CREATE TABLE IF NOT EXISTS track_points (
		id              BIGSERIAL PRIMARY KEY,
		icao_hex        TEXT NOT NULL,
		recorded_at     TIMESTAMPTZ NOT NULL,
		latitude        DOUBLE PRECISION NOT NULL,
		longitude       DOUBLE PRECISION NOT NULL,
		alt_baro_ft     INTEGER,
		ground_speed_kt DOUBLE PRECISION,
		track_deg       DOUBLE PRECISION,
		on_ground       BOOLEAN NOT NULL DEFAULT FALSE,
		callsign        TEXT,
		squawk          INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_track_points_icao_time ON track_points(icao_hex, recorded_at);
	`
	_, err := d.pool.Exec(ctx, schema)
	return err
}

// Aircraft is an identity reference record: registration/type/operator
// metadata keyed by ICAO 24-bit address, kept separate from the live
// in-memory aircraft.Aircraft which holds per-session decoded state.
type Aircraft struct {
	ICAOHex      string
	Registration string
	TypeCode     string
	Operator     string
	FirstSeen    time.Time
	LastSeen     time.Time
	MsgCount     int
}

// UpsertAircraftIdentity inserts or updates an aircraft identity record.
func (d *PostgresDB) UpsertAircraftIdentity(ctx context.Context, a Aircraft) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO aircraft_identity (icao_hex, registration, type_code, operator, first_seen, last_seen, msg_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (icao_hex) DO UPDATE SET
			registration = COALESCE(NULLIF(EXCLUDED.registration, ''), aircraft_identity.registration),
			type_code = COALESCE(NULLIF(EXCLUDED.type_code, ''), aircraft_identity.type_code),
			operator = COALESCE(NULLIF(EXCLUDED.operator, ''), aircraft_identity.operator),
			last_seen = EXCLUDED.last_seen,
			msg_count = aircraft_identity.msg_count + 1
	`, a.ICAOHex, a.Registration, a.TypeCode, a.Operator, a.FirstSeen, a.LastSeen, a.MsgCount)
	return err
}

// GetAircraftIdentity retrieves an aircraft identity record by ICAO hex.
func (d *PostgresDB) GetAircraftIdentity(ctx context.Context, icaoHex string) (*Aircraft, error) {
	var a Aircraft
	err := d.pool.QueryRow(ctx, `
		SELECT icao_hex, registration, type_code, operator, first_seen, last_seen, msg_count
		FROM aircraft_identity WHERE icao_hex = $1
	`, icaoHex).Scan(&a.ICAOHex, &a.Registration, &a.TypeCode, &a.Operator, &a.FirstSeen, &a.LastSeen, &a.MsgCount)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// TrackPoint is one recorded position sample for a single aircraft,
// persisted by cmd/readsb-core on every accepted position change (the
// tracker's OnPositionChange callback) so flights can be replayed or
// exported after the fact.
type TrackPoint struct {
	ICAOHex       string
	RecordedAt    time.Time
	Latitude      float64
	Longitude     float64
	AltBaroFt     int
	GroundSpeedKt float64
	TrackDeg      float64
	OnGround      bool
	Callsign      string
	Squawk        uint16
}

// InsertTrackPoint records one position sample.
func (d *PostgresDB) InsertTrackPoint(ctx context.Context, p TrackPoint) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO track_points (icao_hex, recorded_at, latitude, longitude, alt_baro_ft, ground_speed_kt, track_deg, on_ground, callsign, squawk)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ICAOHex, p.RecordedAt, p.Latitude, p.Longitude, p.AltBaroFt, p.GroundSpeedKt, p.TrackDeg, p.OnGround, p.Callsign, p.Squawk)
	return err
}

// ListTrackPoints returns every recorded point for one aircraft since a
// given time, ordered chronologically, for a single-flight KML/GPX export.
func (d *PostgresDB) ListTrackPoints(ctx context.Context, icaoHex string, since time.Time) ([]TrackPoint, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT icao_hex, recorded_at, latitude, longitude, alt_baro_ft, ground_speed_kt, track_deg, on_ground, callsign, squawk
		FROM track_points
		WHERE icao_hex = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC
	`, icaoHex, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackPoint
	for rows.Next() {
		var p TrackPoint
		var altBaro *int
		var gs, trk *float64
		var callsign *string
		var squawk *int
		if err := rows.Scan(&p.ICAOHex, &p.RecordedAt, &p.Latitude, &p.Longitude, &altBaro, &gs, &trk, &p.OnGround, &callsign, &squawk); err != nil {
			return nil, err
		}
		if altBaro != nil {
			p.AltBaroFt = *altBaro
		}
		if gs != nil {
			p.GroundSpeedKt = *gs
		}
		if trk != nil {
			p.TrackDeg = *trk
		}
		if callsign != nil {
			p.Callsign = *callsign
		}
		if squawk != nil {
			p.Squawk = uint16(*squawk)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListTrackedAircraft returns the ICAO hexes of every aircraft with at
// least minPoints recorded track points, for batch export tooling.
func (d *PostgresDB) ListTrackedAircraft(ctx context.Context, minPoints int) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT icao_hex FROM track_points
		GROUP BY icao_hex
		HAVING COUNT(*) >= $1
		ORDER BY icao_hex
	`, minPoints)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, err
		}
		out = append(out, hex)
	}
	return out, rows.Err()
}

// Pool exposes the underlying pgx pool for tooling that needs raw queries
// (statistics reports, one-off migrations).
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}
