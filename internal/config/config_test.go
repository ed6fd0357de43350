package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NfixCRC != 2 {
		t.Errorf("NfixCRC = %d, want 2", cfg.NfixCRC)
	}
	if cfg.MaxRangeNM != 250.0 {
		t.Errorf("MaxRangeNM = %v, want 250.0", cfg.MaxRangeNM)
	}
	if cfg.MetricsAddr != ":9273" {
		t.Errorf("MetricsAddr = %q, want :9273", cfg.MetricsAddr)
	}
	if cfg.PostgresEnabled || cfg.ClickHouseEnabled {
		t.Error("postgres/clickhouse should be disabled by default")
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("READSB_NFIX_CRC", "1")
	t.Setenv("READSB_MAX_RANGE_NM", "400")
	t.Setenv("READSB_POSTGRES_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NfixCRC != 1 {
		t.Errorf("NfixCRC = %d, want 1", cfg.NfixCRC)
	}
	if cfg.MaxRangeNM != 400 {
		t.Errorf("MaxRangeNM = %v, want 400", cfg.MaxRangeNM)
	}
	if !cfg.PostgresEnabled {
		t.Error("expected PostgresEnabled to be true from env override")
	}
}

func TestTrackerConfigProjection(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.UserLat = 51.5
	cfg.UserLon = -0.1
	cfg.HaveUserLocation = true

	tc := cfg.TrackerConfig()
	if tc.UserLat != 51.5 || tc.UserLon != -0.1 || !tc.HaveUserLocation {
		t.Errorf("TrackerConfig projection mismatch: %+v", tc)
	}
	if tc.NfixCRC != cfg.NfixCRC {
		t.Errorf("NfixCRC mismatch: %d vs %d", tc.NfixCRC, cfg.NfixCRC)
	}
}
