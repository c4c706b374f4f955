package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "PRETTYQR"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Studio    StudioConfig    `mapstructure:"studio"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type StudioConfig struct {
	Debounce               time.Duration `mapstructure:"debounce"`
	MaxPayload             int           `mapstructure:"max_payload"`
	MinSize                int           `mapstructure:"min_size"`
	MaxSize                int           `mapstructure:"max_size"`
	DefaultSize            int           `mapstructure:"default_size"`
	DefaultModuleColor     string        `mapstructure:"default_module_color"`
	DefaultBackgroundColor string        `mapstructure:"default_background_color"`
	Margin                 int           `mapstructure:"margin"`
	Backend                string        `mapstructure:"backend"`
	ErrorCorrection        string        `mapstructure:"error_correction"`
}

type SessionsConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	MaxSessions   int           `mapstructure:"max_sessions"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	ExportsPerMinute int `mapstructure:"exports_per_minute"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("studio.debounce", 500*time.Millisecond)
	v.SetDefault("studio.max_payload", 800)
	v.SetDefault("studio.min_size", 128)
	v.SetDefault("studio.max_size", 512)
	v.SetDefault("studio.default_size", 256)
	v.SetDefault("studio.default_module_color", "#ffffff")
	v.SetDefault("studio.default_background_color", "#000000")
	v.SetDefault("studio.margin", 2)
	v.SetDefault("studio.backend", "skip2")
	v.SetDefault("studio.error_correction", "medium")

	v.SetDefault("sessions.ttl", 30*time.Minute)
	v.SetDefault("sessions.max_sessions", 1000)
	v.SetDefault("sessions.sweep_interval", time.Minute)

	v.SetDefault("rate_limit.exports_per_minute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the config file at path. A missing file is not an error when
// path is empty; defaults and PRETTYQR_* environment variables still apply.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	return &config, nil
}
