package config

import "time"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Ops      OpsConfig      `mapstructure:"ops"`
	OCPP     OCPPConfig     `mapstructure:"ocpp"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig is the WebSocket listener chargers and the operator UI
// connect to.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// OpsConfig is the HTTP listener serving health checks and Prometheus metrics.
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

type OCPPConfig struct {
	MaxChargers          int           `mapstructure:"max_chargers"`
	NumConnectors        int           `mapstructure:"num_connectors"`
	HeartbeatInterval    int           `mapstructure:"heartbeat_interval"`
	ResendBootInterval   int           `mapstructure:"resend_boot_interval"`
	CallTimeout          time.Duration `mapstructure:"call_timeout"`
	EnforceBootAllowlist bool          `mapstructure:"enforce_boot_allowlist"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig carries the allow-lists. IdTags is the authorization list
// consulted by Authorize, StartTransaction and StopTransaction. Vendors and
// Models are only consulted when ocpp.enforce_boot_allowlist is set.
type AuthConfig struct {
	IdTags  []string `mapstructure:"id_tags"`
	Vendors []string `mapstructure:"vendors"`
	Models  []string `mapstructure:"models"`
}
