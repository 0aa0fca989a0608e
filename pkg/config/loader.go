package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("server.port", "OCPP_PORT", "APP_SERVER_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	viper.BindEnv("nats.url", "NATS_URL", "APP_NATS_URL")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file: defaults plus env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults carries the protocol constants of OCPP 1.6 and the allow-lists
// the deployment ships with. Everything can be overridden from config.yaml.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("ops.port", 9090)

	viper.SetDefault("ocpp.max_chargers", 5)
	viper.SetDefault("ocpp.num_connectors", 2)
	viper.SetDefault("ocpp.heartbeat_interval", 86400)
	viper.SetDefault("ocpp.resend_boot_interval", 300)
	viper.SetDefault("ocpp.call_timeout", 10*time.Second)
	viper.SetDefault("ocpp.enforce_boot_allowlist", false)

	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("nats.enabled", false)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("auth.id_tags", []string{
		"12345",
		"D0431F35",
		"00FFFFFFFF",
		"idTag_Charger",
		"100",
	})
	viper.SetDefault("auth.vendors", []string{"MicroOcpp"})
	viper.SetDefault("auth.models", []string{"MicroOcpp Simulator"})
}
