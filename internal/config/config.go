// Package config loads reposearch settings from defaults, an optional YAML
// file and REPOSEARCH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// REPOSEARCH_GITHUB_BASE_URL for github.base_url.
const EnvPrefix = "REPOSEARCH"

// Config is the full application configuration.
type Config struct {
	Log    Log    `mapstructure:"log"`
	Server Server `mapstructure:"server"`
	GitHub GitHub `mapstructure:"github"`
	Search Search `mapstructure:"search"`
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `mapstructure:"host" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	TLSCertFile     string        `mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile      string        `mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`
}

// GitHub configures the upstream search API client.
type GitHub struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	UserAgent     string        `mapstructure:"user_agent" validate:"required"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RatePerMinute int           `mapstructure:"rate_per_minute" validate:"gte=1"`
	RateBurst     int           `mapstructure:"rate_burst" validate:"gte=1"`
}

// Search configures sessions, the gate and the result cache.
type Search struct {
	Cooldown       time.Duration `mapstructure:"cooldown" validate:"gt=0"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	ErrorTTL       time.Duration `mapstructure:"error_ttl" validate:"gt=0"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout" validate:"gt=0"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout" validate:"gt=0"`
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl" validate:"gt=0"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
}

// SetDefaults registers the default for every key. Keys must have a
// default to be overridable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.host", "localhost:8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 20*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.user_agent", "reposearch")
	v.SetDefault("github.timeout", 10*time.Second)
	v.SetDefault("github.rate_per_minute", 10)
	v.SetDefault("github.rate_burst", 2)

	v.SetDefault("search.cooldown", 6*time.Second)
	v.SetDefault("search.cache_ttl", 5*time.Minute)
	v.SetDefault("search.error_ttl", 10*time.Second)
	v.SetDefault("search.load_timeout", 15*time.Second)
	v.SetDefault("search.wait_timeout", 15*time.Second)
	v.SetDefault("search.session_idle_ttl", 30*time.Minute)
	v.SetDefault("search.sweep_interval", time.Minute)
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads file, when given, into v and decodes and validates the
// result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file[%s]: %w", file, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	})

	return v
}

// Validate checks cfg's constraints, naming failing keys by their dotted
// config path.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", key, fe.Tag(), fe.Value()))
	}

	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
