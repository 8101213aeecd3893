package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	RedisURL         string        `mapstructure:"redis_url"`
	RedisChannel     string        `mapstructure:"redis_channel"`
	RedisDialTimeout time.Duration `mapstructure:"redis_dial_timeout"`

	// DatabasePath selects SQLite persistence; empty keeps everything in memory.
	DatabasePath  string `mapstructure:"database_path"`
	InternalToken string `mapstructure:"internal_token"`

	InviteLimit  int           `mapstructure:"invite_limit"`
	InviteWindow time.Duration `mapstructure:"invite_window"`

	ICEServersJSON string `mapstructure:"ice_servers_json"`
}

// Load reads config/config.<CONFIG_ENV>.yaml when present, then RELAY_* env vars.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "")
	v.SetDefault("read_limit", 200000)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_channel", "chat:events")
	v.SetDefault("redis_dial_timeout", "3s")
	v.SetDefault("database_path", "")
	v.SetDefault("internal_token", "")
	v.SetDefault("invite_limit", 3)
	v.SetDefault("invite_window", "30s")
	v.SetDefault("ice_servers_json", "")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults and env")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("redis", cfg.RedisURL != "").Bool("sqlite", cfg.DatabasePath != "").Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.Secret) == "" {
		errs = append(errs, errors.New("secret is required"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("read_limit must be positive"))
	}
	if c.PingPeriod <= 0 {
		errs = append(errs, errors.New("ping_period must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.InviteLimit < 0 {
		errs = append(errs, errors.New("invite_limit must not be negative"))
	}
	if c.InviteLimit > 0 && c.InviteWindow <= 0 {
		errs = append(errs, errors.New("invite_window must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
