package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort          string        `mapstructure:"server_port"`
	DBDriver            string        `mapstructure:"db_driver"`
	DBDSN               string        `mapstructure:"db_dsn"`
	RedisAddr           string        `mapstructure:"redis_addr"`
	RedisDB             int           `mapstructure:"redis_db"`
	RedisPass           string        `mapstructure:"redis_password"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	PANMasterKey        string        `mapstructure:"pan_master_key"`
	LogLevel            string        `mapstructure:"log_level"`
	ExpirySweepSchedule string        `mapstructure:"expiry_sweep_schedule"`
	CardCacheTTL        time.Duration `mapstructure:"card_cache_ttl"`
	SwaggerHost         string        `mapstructure:"swagger_host"`
}

// Load builds Config from environment with sensible defaults. An optional
// config file named by CONFIG_FILE is read first; env always wins.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_file", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("db_driver", "mysql")
	v.SetDefault("db_dsn", "user:password@tcp(localhost:3306)/cards?charset=utf8mb4&parseTime=True&loc=UTC")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_password", "")
	v.SetDefault("jwt_secret", "change-me")
	v.SetDefault("pan_master_key", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("expiry_sweep_schedule", "@hourly")
	v.SetDefault("card_cache_ttl", 5*time.Minute)
	v.SetDefault("swagger_host", "")
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.PANMasterKey == "" {
		return fmt.Errorf("PAN_MASTER_KEY is required")
	}
	return nil
}
