// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct. It is built once at
// process start and passed into constructors; nothing in the engine reads
// configuration from ambient globals.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Stripe        StripeConfig       `mapstructure:"stripe"`
	Auditor       AuditorConfig      `mapstructure:"auditor"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Search        SearchConfig       `mapstructure:"search"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`          // webhook + read API + metrics
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"` // ledger audit index
}

// StripeConfig holds provider credentials and the deploy-specific price ids
// the plan catalog is built from.
type StripeConfig struct {
	APIKey        string         `mapstructure:"api_key"`
	WebhookSecret string         `mapstructure:"webhook_secret"`
	PriceIDs      PriceIDsConfig `mapstructure:"price_ids"`
}

type PriceIDsConfig struct {
	Starter string `mapstructure:"starter"`
	Plus    string `mapstructure:"plus"`
	Pro     string `mapstructure:"pro"`
}

// AuditorConfig tunes the periodic drift sweep.
type AuditorConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	Interval         int  `mapstructure:"interval"`          // seconds between sweeps
	WorkspaceTimeout int  `mapstructure:"workspace_timeout"` // milliseconds per workspace fetch+reconcile
}

type CacheConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	SnapshotTTL int  `mapstructure:"snapshot_ttl"` // seconds
}

type SearchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type NotificationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	OpsTopicARN string `mapstructure:"ops_topic_arn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
