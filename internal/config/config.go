package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "STREAMROOM"

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Backpressure string        `mapstructure:"backpressure"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
	LogLevel     string        `mapstructure:"log_level"`
	Secret       string        `mapstructure:"secret"`
	ICEServers   []string      `mapstructure:"ice_servers"`
	TURNUsername string        `mapstructure:"turn_username"`
	TURNPassword string        `mapstructure:"turn_credential"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Default is the configuration used when no file, env or flag says otherwise.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("backpressure", "drop")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_window", "1s")
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "streamroom-dev-secret")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("turn_username", "")
	v.SetDefault("turn_credential", "")
}

// RegisterFlags adds the server flags that Load understands.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config-env", "", "config file suffix, reads config/config.<env>.yaml (default $CONFIG_ENV or dev)")
	flags.String("config-dir", "config", "directory holding the config files")
	flags.Int("port", 8080, "listen port")
	flags.String("mode", "release", "gin mode: debug or release")
	flags.String("log-level", "info", "zerolog level")
}

// Load merges defaults, config/config.<env>.yaml, a .env file, STREAMROOM_*
// environment variables and flags, in increasing priority.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("CONFIG_ENV")
	dir := "config"
	if flags != nil {
		for key, name := range map[string]string{
			"port":      "port",
			"mode":      "mode",
			"log_level": "log-level",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if s, err := flags.GetString("config-env"); err == nil && s != "" {
			env = s
		}
		if s, err := flags.GetString("config-dir"); err == nil && s != "" {
			dir = s
		}
	}
	if env == "" {
		env = "dev"
	}

	fileName := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	v.SetConfigFile(fileName)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.SendBuffer <= 0:
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	case c.ReadLimit <= 0:
		return fmt.Errorf("read_limit must be positive, got %d", c.ReadLimit)
	case c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod:
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	case c.WriteWait <= 0:
		return fmt.Errorf("write_wait must be positive, got %s", c.WriteWait)
	}
	return nil
}
