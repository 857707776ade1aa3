// Package config loads process settings from a .env file and the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	SinkLog   = "log"
	SinkKafka = "kafka"
)

type Config struct {
	Port               string `mapstructure:"PORT"`
	Env                string `mapstructure:"ENV"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32  `mapstructure:"DB_MIN_CONNS"`
	Store              string `mapstructure:"STORE"`
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	KafkaConsumerGroup string `mapstructure:"KAFKA_CONSUMER_GROUP"`
	OTelEndpoint       string `mapstructure:"OTEL_ENDPOINT"`
	OTelEnabled        bool   `mapstructure:"OTEL_ENABLED"`
	APIKeys            string `mapstructure:"API_KEYS"`
	TimeZone           string `mapstructure:"TIME_ZONE"`

	AutoCreateCheckIn            bool `mapstructure:"AUTO_CREATE_CHECKIN"`
	AutoCompleteReservation      bool `mapstructure:"AUTO_COMPLETE_RESERVATION"`
	AutoCreateTreatmentOnCheckIn bool `mapstructure:"AUTO_CREATE_TREATMENT_ON_CHECKIN"`

	NotificationsEnabled bool   `mapstructure:"NOTIFICATIONS_ENABLED"`
	NotificationSink     string `mapstructure:"NOTIFICATION_SINK"`
	NotificationWorkers  int    `mapstructure:"NOTIFICATION_WORKERS"`
	NotificationQueue    int    `mapstructure:"NOTIFICATION_QUEUE"`
}

var defaults = map[string]any{
	"PORT":                             "8081",
	"ENV":                              "development",
	"DB_MAX_CONNS":                     20,
	"DB_MIN_CONNS":                     2,
	"STORE":                            StorePostgres,
	"KAFKA_BROKERS":                    "localhost:9092",
	"KAFKA_CONSUMER_GROUP":             "episode-checkin-consumer",
	"OTEL_ENDPOINT":                    "localhost:4317",
	"OTEL_ENABLED":                     false,
	"TIME_ZONE":                        "Asia/Seoul",
	"AUTO_CREATE_CHECKIN":              true,
	"AUTO_COMPLETE_RESERVATION":        true,
	"AUTO_CREATE_TREATMENT_ON_CHECKIN": true,
	"NOTIFICATIONS_ENABLED":            true,
	"NOTIFICATION_SINK":                SinkLog,
	"NOTIFICATION_WORKERS":             4,
	"NOTIFICATION_QUEUE":               256,
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "STORE",
	"KAFKA_BROKERS", "KAFKA_CONSUMER_GROUP", "OTEL_ENDPOINT", "OTEL_ENABLED",
	"API_KEYS", "TIME_ZONE",
	"AUTO_CREATE_CHECKIN", "AUTO_COMPLETE_RESERVATION", "AUTO_CREATE_TREATMENT_ON_CHECKIN",
	"NOTIFICATIONS_ENABLED", "NOTIFICATION_SINK", "NOTIFICATION_WORKERS", "NOTIFICATION_QUEUE",
}

// Load reads .env when present, then the environment
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects settings the process cannot start with
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}

	switch c.NotificationSink {
	case SinkLog:
	case SinkKafka:
		if len(c.Brokers()) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFICATION_SINK is %q", SinkKafka)
		}
	default:
		return fmt.Errorf("NOTIFICATION_SINK must be %q or %q, got %q", SinkLog, SinkKafka, c.NotificationSink)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.NotificationWorkers < 1 {
		return fmt.Errorf("NOTIFICATION_WORKERS must be positive, got %d", c.NotificationWorkers)
	}
	if c.NotificationQueue < 1 {
		return fmt.Errorf("NOTIFICATION_QUEUE must be positive, got %d", c.NotificationQueue)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIME_ZONE %q: %w", c.TimeZone, err)
	}
	if !c.IsDev() && len(c.Keys()) == 0 {
		return fmt.Errorf("API_KEYS is required outside development (ENV=%q)", c.Env)
	}
	return nil
}

// Brokers splits KAFKA_BROKERS on commas
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// Keys splits API_KEYS on commas
func (c *Config) Keys() []string {
	return splitList(c.APIKeys)
}

// EpisodeConfig maps the rule toggles and time zone onto the coordinator
func (c *Config) EpisodeConfig() (episode.Config, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return episode.Config{}, fmt.Errorf("TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return episode.Config{
		AutoCreateCheckIn:            c.AutoCreateCheckIn,
		AutoCompleteReservation:      c.AutoCompleteReservation,
		AutoCreateTreatmentOnCheckIn: c.AutoCreateTreatmentOnCheckIn,
		Location:                     loc,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
