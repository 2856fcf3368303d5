// Package config loads knolsched settings. Sources are layered, each one
// overriding the previous: built-in defaults, an optional YAML file,
// KNOLSCHED_* environment variables and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knolsched/internal/fsrs"
)

// EnvPrefix marks the environment variables read by Load. A double
// underscore separates nested keys: KNOLSCHED_SCHEDULER__ENABLE_FUZZ.
const EnvPrefix = "KNOLSCHED_"

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for knolsched.
type Config struct {
	Scheduler SchedulerConfig `koanf:"scheduler"`
	DB        DBConfig        `koanf:"db"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LoggingConfig   `koanf:"log"`
}

// SchedulerConfig mirrors fsrs.Params.
type SchedulerConfig struct {
	Weights          []float64   `koanf:"weights" validate:"len=17"`
	RequestRetention float64     `koanf:"request_retention" validate:"gt=0,lt=1"`
	MaximumInterval  int         `koanf:"maximum_interval" validate:"gte=1"`
	EnableFuzz       bool        `koanf:"enable_fuzz"`
	NewSteps         StepsConfig `koanf:"new_steps"`
	RelearnSteps     StepsConfig `koanf:"relearn_steps"`
}

// StepsConfig holds one learning delay per rating, e.g. "10m" or "24h".
type StepsConfig struct {
	Again time.Duration `koanf:"again" validate:"gte=0"`
	Hard  time.Duration `koanf:"hard" validate:"gte=0"`
	Good  time.Duration `koanf:"good" validate:"gte=0"`
	Easy  time.Duration `koanf:"easy" validate:"gte=0"`
}

// DBConfig holds the SQLite location.
type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Options selects the optional sources of Load.
type Options struct {
	// File is a YAML config file. Empty means none; a missing file is an error.
	File string
	// Flags are parsed command-line flags registered with RegisterFlags.
	Flags *pflag.FlagSet
}

// defaults returns the built-in settings as flat koanf keys.
func defaults() map[string]any {
	p := fsrs.DefaultParams()
	return map[string]any{
		"scheduler.weights":             p.Weights[:],
		"scheduler.request_retention":   p.RequestRetention,
		"scheduler.maximum_interval":    p.MaximumInterval,
		"scheduler.enable_fuzz":         p.EnableFuzz,
		"scheduler.new_steps.again":     p.NewSteps.Again,
		"scheduler.new_steps.hard":      p.NewSteps.Hard,
		"scheduler.new_steps.good":      p.NewSteps.Good,
		"scheduler.new_steps.easy":      p.NewSteps.Easy,
		"scheduler.relearn_steps.again": p.RelearnSteps.Again,
		"scheduler.relearn_steps.hard":  p.RelearnSteps.Hard,
		"db.path":                       "knolsched.db",
		"http.addr":                     ":8080",
		"http.shutdown_timeout":         10 * time.Second,
		"log.level":                     "info",
		"log.format":                    "text",
	}
}

// flagKeys maps the flags registered by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"db":           "db.path",
	"addr":         "http.addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"fuzz":         "scheduler.enable_fuzz",
	"retention":    "scheduler.request_retention",
	"max-interval": "scheduler.maximum_interval",
	"weights":      "scheduler.weights",
}

// RegisterFlags adds the config-backed flags to fs. Flags left unset do not
// override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	d := fsrs.DefaultParams()
	fs.StringP("config", "c", "", "Path to a YAML config file")
	fs.String("db", "knolsched.db", "Path to the SQLite database file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.Bool("fuzz", d.EnableFuzz, "Spread review intervals to avoid clustering")
	fs.Float64("retention", d.RequestRetention, "Target recall probability")
	fs.Int("max-interval", d.MaximumInterval, "Longest interval in days")
	fs.Float64Slice("weights", d.Weights[:], "The 17 FSRS model weights")
}

// Load reads configuration from every source in opts plus the environment,
// then validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", opts.File, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns KNOLSCHED_SCHEDULER__NEW_STEPS__AGAIN into
// scheduler.new_steps.again. Weights may be given as a comma separated list.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "scheduler.weights" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

// Validate checks field constraints and that the scheduler settings form
// usable model parameters.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.SchedulerParams(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SchedulerParams converts the scheduler section into validated fsrs.Params.
func (c *Config) SchedulerParams() (fsrs.Params, error) {
	s := c.Scheduler
	var w fsrs.Weights
	if len(s.Weights) != len(w) {
		return fsrs.Params{}, fmt.Errorf("%w: expected %d weights, got %d", fsrs.ErrInvalidParams, len(w), len(s.Weights))
	}
	copy(w[:], s.Weights)

	p := fsrs.Params{
		Weights:          w,
		RequestRetention: s.RequestRetention,
		MaximumInterval:  s.MaximumInterval,
		EnableFuzz:       s.EnableFuzz,
		NewSteps:         fsrs.Steps(s.NewSteps),
		RelearnSteps:     fsrs.Steps(s.RelearnSteps),
	}
	if err := p.Validate(); err != nil {
		return fsrs.Params{}, err
	}
	return p, nil
}
