// Package config resolves the practice server's settings from flags, the
// environment (optionally seeded from a .env file) and defaults, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/danieldreier/mcp-practice/internal/practice"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment variable, e.g. PRACTICE_DRIVER.
const EnvPrefix = "PRACTICE"

// Driver selects the storage backend.
type Driver string

const (
	DriverJSON     Driver = "json"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Keys shared by flags, environment variables and viper lookups.
const (
	KeyDriver   = "driver"
	KeyData     = "data"
	KeyMode     = "mode"
	KeyLogLevel = "log-level"
	KeySeed     = "seed"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the resolved settings.
type Config struct {
	Driver Driver
	// Data is a file path for the json and sqlite drivers and a DSN for
	// postgres.
	Data     string
	Mode     practice.Mode
	LogLevel zapcore.Level
	// Seed fixes the shuffle order when non-zero.
	Seed uint64
}

// Defaults returns the settings used when nothing else is given.
func Defaults() Config {
	return Config{
		Driver:   DriverJSON,
		Data:     "./flashcards.json",
		Mode:     practice.ModeAll,
		LogLevel: zapcore.InfoLevel,
	}
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String(KeyDriver, string(d.Driver), "storage driver: json, sqlite or postgres")
	fs.String(KeyData, d.Data, "data file path, or DSN for postgres")
	fs.String(KeyMode, string(d.Mode), "default practice mode: all, favorites or spaced")
	fs.String(KeyLogLevel, d.LogLevel.String(), "log level: debug, info, warn or error")
	fs.Uint64(KeySeed, d.Seed, "shuffle seed; 0 picks a random one")
}

// LoadDotEnv loads variables from the named .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the configuration. Flags in flags take precedence over
// PRACTICE_* environment variables, which take precedence over defaults.
// flags may be nil.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyDriver, string(d.Driver))
	v.SetDefault(KeyData, d.Data)
	v.SetDefault(KeyMode, string(d.Mode))
	v.SetDefault(KeyLogLevel, d.LogLevel.String())
	v.SetDefault(KeySeed, d.Seed)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	cfg := Config{
		Driver: Driver(strings.ToLower(strings.TrimSpace(v.GetString(KeyDriver)))),
		Data:   strings.TrimSpace(v.GetString(KeyData)),
		Seed:   v.GetUint64(KeySeed),
	}

	mode, err := practice.ParseMode(v.GetString(KeyMode))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.Mode = mode

	level, err := zapcore.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that Load cannot parse into a typed value.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverJSON, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalid, c.Driver)
	}
	if c.Data == "" {
		return fmt.Errorf("%w: data location is empty", ErrInvalid)
	}
	return nil
}
