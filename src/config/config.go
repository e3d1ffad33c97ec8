package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Service         ServiceConfig        `mapstructure:"service"`
	Log             LogConfig            `mapstructure:"log"`
	Databases       DatabasesConfig      `mapstructure:"databases"`
	ExternalClients ExternalClientConfig `mapstructure:"externalClients"`
	Sync            SyncConfig           `mapstructure:"sync"`
	Cache           CacheConfig          `mapstructure:"cache"`
	Worker          WorkerConfig         `mapstructure:"worker"`
}

type ServiceType string

const (
	API    ServiceType = "API"
	WORKER ServiceType = "WORKER"
)

type ServiceConfig struct {
	Type           ServiceType `mapstructure:"type"`
	Port           string      `mapstructure:"port"`
	AllowedOrigins []string    `mapstructure:"allowedOrigins"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputFile string `mapstructure:"outputFile"`
}

type DatabasesConfig struct {
	SQL   SQLConfig   `mapstructure:"sql"`
	Redis RedisConfig `mapstructure:"redis"`
}

type SQLConfig struct {
	Host             string `mapstructure:"host"`
	Port             string `mapstructure:"port"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	Driver           string `mapstructure:"driver"`
	Database         string `mapstructure:"database"`
	ConnectionString string `mapstructure:"connection_string"`
	// SecretName, when set, is resolved through AWS Secrets Manager and replaces Password.
	SecretName string `mapstructure:"secretName"`
	Region     string `mapstructure:"region"`
	MaxConns   int32  `mapstructure:"maxConns"`
	MinConns   int32  `mapstructure:"minConns"`
}

// DSN builds the postgres connection string. ConnectionString wins when present.
func (c SQLConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.Host,
		c.Username,
		c.Password,
		c.Database,
		c.Port)
}

type RedisConfig struct {
	// Host empty means the in-memory cache handler is used instead of Redis.
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
	TLS      bool   `mapstructure:"tls"`
}

type ExternalClientConfig struct {
	Treasuries TreasuriesConfig `mapstructure:"treasuries"`
}

type TreasuriesConfig struct {
	BaseURL  string        `mapstructure:"baseUrl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retryMax"`
}

// SyncConfig holds the staleness windows. Global series use a short window, per-entity data a long one.
type SyncConfig struct {
	PriceWindow     time.Duration `mapstructure:"priceWindow"`
	AggregateWindow time.Duration `mapstructure:"aggregateWindow"`
	EntityWindow    time.Duration `mapstructure:"entityWindow"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BusyTTL         time.Duration `mapstructure:"busyTTL"`
}

type CacheConfig struct {
	HistoricalPriceTTL time.Duration `mapstructure:"historicalPriceTTL"`
	SpotPriceTTL       time.Duration `mapstructure:"spotPriceTTL"`
	AggregateTTL       time.Duration `mapstructure:"aggregateTTL"`
	EntityDataTTL      time.Duration `mapstructure:"entityDataTTL"`
	EntitiesAllTTL     time.Duration `mapstructure:"entitiesAllTTL"`
	AdminEntitiesTTL   time.Duration `mapstructure:"adminEntitiesTTL"`
	SummaryTTL         time.Duration `mapstructure:"summaryTTL"`
}

type WorkerConfig struct {
	WarmupCron string `mapstructure:"warmupCron"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.type", string(API))
	v.SetDefault("service.port", "8000")
	v.SetDefault("service.allowedOrigins", []string{"*"})

	v.SetDefault("log.level", "info")

	v.SetDefault("databases.sql.driver", "postgres")
	v.SetDefault("databases.sql.maxConns", 10)
	v.SetDefault("databases.sql.minConns", 1)

	v.SetDefault("externalClients.treasuries.timeout", 5*time.Second)
	v.SetDefault("externalClients.treasuries.retryMax", 0)

	v.SetDefault("sync.priceWindow", 5*time.Minute)
	v.SetDefault("sync.aggregateWindow", 5*time.Minute)
	v.SetDefault("sync.entityWindow", 12*time.Hour)
	v.SetDefault("sync.timeout", 30*time.Second)
	v.SetDefault("sync.busyTTL", 60*time.Second)

	v.SetDefault("cache.historicalPriceTTL", 600*time.Second)
	v.SetDefault("cache.spotPriceTTL", 600*time.Second)
	v.SetDefault("cache.aggregateTTL", 600*time.Second)
	v.SetDefault("cache.entityDataTTL", 300*time.Second)
	v.SetDefault("cache.entitiesAllTTL", 300*time.Second)
	v.SetDefault("cache.adminEntitiesTTL", 604800*time.Second)
	v.SetDefault("cache.summaryTTL", 300*time.Second)

	v.SetDefault("worker.warmupCron", "*/5 * * * *")
}

// Default returns a configuration made only of defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults are all well-typed, so this cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadConfig reads appsettings.yaml from path and merges appsettings.{env}.yaml on top when env is set.
// Environment variables override both (sync.priceWindow -> SYNC_PRICEWINDOW).
func LoadConfig(path string, env string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("appsettings")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if env != "" {
		overlay := filepath.Join(path, fmt.Sprintf("appsettings.%s.yaml", env))
		if _, err := os.Stat(overlay); err == nil {
			v.SetConfigFile(overlay)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to merge %s settings: %w", env, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
