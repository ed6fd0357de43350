// Package config loads the core's configuration from defaults, an optional
// config file, and environment variables, the way
// billglover-go-adsb-console layers viper over a long-running ingest
// daemon's settings. The resulting Config is immutable after Load returns
// and is handed by value to every subsystem that needs it, per the
// "no hidden global Modes struct" design note.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"acars_parser/internal/tracker"
)

// Config is the full set of tunables for one readsb-core process.
type Config struct {
	NfixCRC           int     `mapstructure:"nfix_crc"`
	FilterPersistence int     `mapstructure:"filter_persistence"`
	JSONReliable      int     `mapstructure:"json_reliable"`
	MaxRangeNM        float64 `mapstructure:"max_range_nm"`
	RegistryBuckets   int     `mapstructure:"registry_buckets"`
	UserLat           float64 `mapstructure:"user_lat"`
	UserLon           float64 `mapstructure:"user_lon"`
	HaveUserLocation  bool    `mapstructure:"have_user_location"`

	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
	AMQPURL     string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`

	SQLitePath string `mapstructure:"sqlite_path"`

	PostgresEnabled  bool   `mapstructure:"postgres_enabled"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDatabase string `mapstructure:"postgres_database"`

	ClickHouseEnabled  bool   `mapstructure:"clickhouse_enabled"`
	ClickHouseHost     string `mapstructure:"clickhouse_host"`
	ClickHousePort     int    `mapstructure:"clickhouse_port"`
	ClickHouseDatabase string `mapstructure:"clickhouse_database"`
	ClickHouseUser     string `mapstructure:"clickhouse_user"`
	ClickHousePassword string `mapstructure:"clickhouse_password"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("nfix_crc", 2)
	v.SetDefault("filter_persistence", 8)
	v.SetDefault("json_reliable", 2)
	v.SetDefault("max_range_nm", 250.0)
	v.SetDefault("registry_buckets", 1<<20)
	v.SetDefault("sqlite_path", "readsb-state.db")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "readsb")
	v.SetDefault("postgres_database", "readsb")
	v.SetDefault("clickhouse_host", "localhost")
	v.SetDefault("clickhouse_port", 9000)
	v.SetDefault("clickhouse_database", "readsb")
	v.SetDefault("clickhouse_user", "default")
	v.SetDefault("metrics_addr", ":9273")
	v.SetDefault("nats_subject", "readsb.events")
	v.SetDefault("amqp_exchange", "readsb")
}

// Load reads configuration from (in increasing priority) defaults, an
// optional file at configPath, and READSB_-prefixed environment variables.
func Load(configPath string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("READSB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// TrackerConfig projects the subset of Config the tracker package needs.
func (c Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		FilterPersistence: c.FilterPersistence,
		JSONReliable:      c.JSONReliable,
		MaxRangeNM:        c.MaxRangeNM,
		RegistryBuckets:   c.RegistryBuckets,
		NfixCRC:           c.NfixCRC,
		UserLat:           c.UserLat,
		UserLon:           c.UserLon,
		HaveUserLocation:  c.HaveUserLocation,
	}
}
