// Package config loads the application configuration from YAML files and
// MAVEDB_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/VariantEffect/mavedb-core/pkg/external"
)

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds the Postgres settings.
type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	MaxConns    int32         `mapstructure:"max_conns"`
	MinConns    int32         `mapstructure:"min_conns"`
	MaxConnLife time.Duration `mapstructure:"conn_max_lifetime"`
	MaxConnIdle time.Duration `mapstructure:"conn_max_idle"`
}

// WorkerConfig holds the background worker settings.
type WorkerConfig struct {
	RedisURL        string        `mapstructure:"redis_url"`
	QueueKey        string        `mapstructure:"queue_key"`
	Concurrency     int           `mapstructure:"concurrency"`
	MapperInterval  time.Duration `mapstructure:"mapper_interval"`
	ControlsVersion string        `mapstructure:"controls_version"`
}

// ExternalConfig holds one client section per external service.
type ExternalConfig struct {
	Mapping  external.ClientConfig `mapstructure:"mapping"`
	ClinGen  external.ClientConfig `mapstructure:"clingen"`
	ClinVar  external.ClientConfig `mapstructure:"clinvar"`
	Crossref external.ClientConfig `mapstructure:"crossref"`
	PubMed   external.ClientConfig `mapstructure:"pubmed"`
	Rxiv     external.ClientConfig `mapstructure:"rxiv"`

	// The gnomAD data lake is SQL, not HTTP.
	GnomADLakeDSN     string `mapstructure:"gnomad_lake_dsn"`
	GnomADLakeVersion string `mapstructure:"gnomad_lake_version"`

	ClinGenCacheSize int `mapstructure:"clingen_cache_size"`
}

// LoggingConfig holds the logrus settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full application configuration.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Worker      WorkerConfig   `mapstructure:"worker"`
	External    ExternalConfig `mapstructure:"external"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// Load reads the configuration from config.yaml (searched in ., ./config and
// /etc/mavedb-core) and the environment. A missing file is not an error.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/mavedb-core/")

	viper.SetEnvPrefix("MAVEDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8002)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.idle_timeout", "120s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "mavedb")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 25)
	viper.SetDefault("database.min_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.conn_max_idle", "1m")

	viper.SetDefault("worker.redis_url", "redis://localhost:6379")
	viper.SetDefault("worker.queue_key", "mavedb:jobs:queue")
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.mapper_interval", "1m")
	viper.SetDefault("worker.controls_version", "")

	viper.SetDefault("external.mapping.base_url", "http://dcd-mapping:8000/")
	viper.SetDefault("external.mapping.timeout", "15m")
	viper.SetDefault("external.clingen.base_url", "https://reg.genome.network/")
	viper.SetDefault("external.clingen.timeout", "30s")
	viper.SetDefault("external.clingen.rate_limit", 10)
	viper.SetDefault("external.clinvar.base_url", "https://ftp.ncbi.nlm.nih.gov/pub/clinvar/tab_delimited/archive/")
	viper.SetDefault("external.clinvar.timeout", "30m")
	viper.SetDefault("external.crossref.base_url", "https://api.crossref.org/")
	viper.SetDefault("external.crossref.timeout", "30s")
	viper.SetDefault("external.crossref.rate_limit", 10)
	viper.SetDefault("external.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/")
	viper.SetDefault("external.pubmed.timeout", "30s")
	viper.SetDefault("external.pubmed.rate_limit", 3)
	viper.SetDefault("external.rxiv.base_url", "https://api.biorxiv.org/")
	viper.SetDefault("external.rxiv.timeout", "30s")
	viper.SetDefault("external.rxiv.rate_limit", 5)
	viper.SetDefault("external.gnomad_lake_version", "4.1")
	viper.SetDefault("external.clingen_cache_size", 4096)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}
	if c.Worker.RedisURL == "" {
		return fmt.Errorf("worker Redis URL is required")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// DatabaseURL renders the Postgres URL used by the migration runner.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password,
		c.Database.Host, c.Database.Port,
		c.Database.Database, c.Database.SSLMode)
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}
