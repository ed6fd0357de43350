package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	rows := []SnapshotRow{
		{ICAOHex: "a1b2c3", Callsign: "TEST01", Squawk: 1200, Lat: 51.5, Lon: -0.1, HasPos: true, LastSeen: now},
		{ICAOHex: "d4e5f6", HasPos: false, LastSeen: now},
	}

	if err := db.SaveSnapshot(ctx, rows); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := db.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}

	byHex := make(map[string]SnapshotRow, len(got))
	for _, r := range got {
		byHex[r.ICAOHex] = r
	}

	first, ok := byHex["a1b2c3"]
	if !ok {
		t.Fatal("missing a1b2c3 row")
	}
	if first.Callsign != "TEST01" || first.Squawk != 1200 || !first.HasPos {
		t.Errorf("unexpected row for a1b2c3: %+v", first)
	}
	if first.Lat != 51.5 || first.Lon != -0.1 {
		t.Errorf("unexpected position for a1b2c3: %+v", first)
	}

	second, ok := byHex["d4e5f6"]
	if !ok {
		t.Fatal("missing d4e5f6 row")
	}
	if second.HasPos {
		t.Error("d4e5f6 should have HasPos false")
	}
}

func TestSQLiteSnapshotReplacesPriorContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	if err := db.SaveSnapshot(ctx, []SnapshotRow{{ICAOHex: "111111", LastSeen: now}}); err != nil {
		t.Fatalf("first SaveSnapshot: %v", err)
	}
	if err := db.SaveSnapshot(ctx, []SnapshotRow{{ICAOHex: "222222", LastSeen: now}}); err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}

	got, err := db.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(got) != 1 || got[0].ICAOHex != "222222" {
		t.Fatalf("expected snapshot to be fully replaced, got %+v", got)
	}
}
