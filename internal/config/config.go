// Package config loads knoldeck settings from defaults, an optional YAML
// file, KNOLDECK_ environment variables and command-line flags, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// EnvPrefix marks the environment variables read by Load. A double
// underscore separates nested keys: KNOLDECK_DATABASE__DSN.
const EnvPrefix = "KNOLDECK_"

type Config struct {
	Database  Database  `koanf:"database"`
	Scheduler Scheduler `koanf:"scheduler"`
	Engine    Engine    `koanf:"engine"`
	Locking   Locking   `koanf:"locking"`
	Log       Log       `koanf:"log"`
	ReposDir  string    `koanf:"repos_dir" validate:"required"`
}

type Database struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite memory"`
	DSN    string `koanf:"dsn" validate:"required_if=Driver sqlite"`
}

type Scheduler struct {
	Algorithm       string  `koanf:"algorithm" validate:"oneof=fsrs simple"`
	Retention       float64 `koanf:"retention" validate:"gt=0,lt=1"`
	MaximumInterval float64 `koanf:"maximum_interval" validate:"gt=0"`
}

type Engine struct {
	Direction         string `koanf:"direction" validate:"oneof=ascending descending"`
	IncludeUnreviewed bool   `koanf:"include_unreviewed"`
}

type Locking struct {
	Mode string `koanf:"mode" validate:"oneof=none single rw"`
}

type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

var defaults = map[string]any{
	"database.driver":            "sqlite",
	"database.dsn":               "knoldeck.db",
	"scheduler.algorithm":        "fsrs",
	"scheduler.retention":        0.9,
	"scheduler.maximum_interval": 36500.0,
	"engine.direction":           "ascending",
	"engine.include_unreviewed":  true,
	"locking.mode":               "single",
	"log.level":                  "info",
	"repos_dir":                  "repos",
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"db":                 "database.dsn",
	"driver":             "database.driver",
	"algorithm":          "scheduler.algorithm",
	"retention":          "scheduler.retention",
	"direction":          "engine.direction",
	"include-unreviewed": "engine.include_unreviewed",
	"locking":            "locking.mode",
	"log-level":          "log.level",
	"repos-dir":          "repos_dir",
}

// RegisterFlags adds the configuration flags to fs. Their defaults are
// informational; unset flags never override file or environment values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", "knoldeck.db", "Path to the SQLite database file")
	fs.String("driver", "sqlite", "Storage backend (sqlite|memory)")
	fs.String("algorithm", "fsrs", "Scheduling model (fsrs|simple)")
	fs.Float64("retention", 0.9, "Desired retention between 0 and 1")
	fs.String("direction", "ascending", "Priority direction (ascending|descending)")
	fs.Bool("include-unreviewed", true, "Offer cards that were never reviewed")
	fs.String("locking", "single", "Locking mode (none|single|rw)")
	fs.String("log-level", "info", "Log level (debug|info|warn|error)")
	fs.String("repos-dir", "repos", "Directory git deck sources are cloned into")
}

// Load builds the configuration. path may be empty; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	var cfg Config
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return cfg, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return cfg, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		p := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(p, nil); err != nil {
			return cfg, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s: %w", strings.Join(msgs, "; "), domain.ErrValidation)
		}
		return fmt.Errorf("invalid config: %v: %w", err, domain.ErrValidation)
	}
	return nil
}

// SlogLevel converts log.level for a slog handler.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
