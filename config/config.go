package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	ThingName string `mapstructure:"THING_NAME"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBName     string `mapstructure:"DB_NAME"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`

	MqttBroker   string `mapstructure:"MQTT_BROKER"`
	MqttUser     string `mapstructure:"MQTT_USER"`
	MqttPassword string `mapstructure:"MQTT_PASSWORD"`
	MqttClientID string `mapstructure:"MQTT_CLIENT_ID"`

	NatsUrl string `mapstructure:"NATS_URL"`

	LockDwell     time.Duration `mapstructure:"LOCK_DWELL"`
	RelockDelay   time.Duration `mapstructure:"RELOCK_DELAY"`
	PubAckWait    time.Duration `mapstructure:"PUBACK_WAIT"`
	StrictVersion bool          `mapstructure:"STRICT_VERSION"`

	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
}

var keys = []string{
	"THING_NAME",
	"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
	"MQTT_BROKER", "MQTT_USER", "MQTT_PASSWORD", "MQTT_CLIENT_ID",
	"NATS_URL",
	"LOCK_DWELL", "RELOCK_DELAY", "PUBACK_WAIT", "STRICT_VERSION",
	"METRICS_ADDR", "LOG_LEVEL",
}

// HasDatabase reports whether the lock-event journal should be written to postgres.
func (c Config) HasDatabase() bool {
	return c.DBHost != "" && c.DBName != ""
}

func (c Config) Validate() error {
	if c.ThingName == "" {
		return errors.New("THING_NAME is required")
	}
	if c.MqttBroker == "" {
		return errors.New("MQTT_BROKER is required")
	}
	if c.LockDwell <= 0 || c.RelockDelay <= 0 || c.PubAckWait <= 0 {
		return fmt.Errorf("durations must be positive: dwell=%s relock=%s puback=%s",
			c.LockDwell, c.RelockDelay, c.PubAckWait)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("LOCK_DWELL", "5s")
	v.SetDefault("RELOCK_DELAY", "5s")
	v.SetDefault("PUBACK_WAIT", "5s")
	v.SetDefault("STRICT_VERSION", false)
	v.SetDefault("LOG_LEVEL", "info")
}

func LoadConfig() (Config, error) {
	return load(".env")
}

func load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	setDefaults(v)

	v.AutomaticEnv()
	// AutomaticEnv only answers Get for known keys; Unmarshal needs them bound.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file, using environment variables")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}
