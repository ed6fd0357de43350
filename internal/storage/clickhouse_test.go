package storage

import (
	"context"
	"os"
	"testing"
	"time"
)

// setupTestClickHouse creates a test database connection. Returns nil if no
// ClickHouse connection is available, so these tests skip cleanly in an
// environment with no database running.
func setupTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		host = "localhost"
	}
	database := os.Getenv("CLICKHOUSE_DB")
	if database == "" {
		database = "readsb"
	}

	ctx := context.Background()
	ch, err := OpenClickHouse(ctx, ClickHouseConfig{
		Host:     host,
		Port:     9000,
		User:     "default",
		Database: database,
	})
	if err != nil {
		return nil
	}

	if err := ch.CreateSchema(ctx); err != nil {
		ch.Close()
		return nil
	}

	return ch
}

func TestInsertAndQueryDecodedMessage(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()

	ctx := context.Background()
	recv := time.Now().UTC().Truncate(time.Millisecond)

	err := ch.Insert(ctx, InsertParams{
		RecvTime:      recv,
		ICAOHex:       "abcdef",
		DF:            17,
		METype:        11,
		Source:        "adsb",
		CorrectedBits: 0,
		RawHex:        "8dabcdef...",
		Decoded:       map[string]int{"df": 17},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	msgs, err := ch.Query(ctx, QueryParams{ICAOHex: "abcdef", Since: recv.Add(-time.Minute), Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatal("expected at least one decoded message back")
	}
	if msgs[0].ICAOHex != "abcdef" {
		t.Errorf("ICAOHex = %q, want abcdef", msgs[0].ICAOHex)
	}
}

func TestInsertTraceChunk(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()

	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)
	end := time.Now().UTC()

	err := ch.InsertTraceChunk(ctx, "abcdef", start, end, 42, []byte{0x28, 0xb5, 0x2f, 0xfd})
	if err != nil {
		t.Fatalf("InsertTraceChunk: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()

	ctx := context.Background()
	if _, err := ch.GetStats(ctx); err != nil {
		t.Fatalf("GetStats: %v", err)
	}
}
