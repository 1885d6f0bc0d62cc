package main

import (
	"fmt"

	"github.com/danieldreier/mcp-practice/internal/config"
	"github.com/danieldreier/mcp-practice/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envFileFlag = "env-file"

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "practice",
		Short: "Flashcard practice sessions with SM-2 scheduling",
		Long: `Practice runs flashcard practice sessions over one deck at a time.
Cards are scheduled with the SM-2 spaced repetition algorithm.

Settings come from flags, PRACTICE_* environment variables and an
optional .env file, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString(envFileFlag)
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	config.RegisterFlags(root.PersistentFlags())
	root.PersistentFlags().String(envFileFlag, ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newServeCmd(a), newDueCmd(a))
	return root
}

// newLogger builds the development logger. Output goes to stderr because
// stdout carries the MCP stream.
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// openStorage opens and loads the backend selected by cfg.
func openStorage(cfg config.Config, logger *zap.Logger) (storage.Storage, error) {
	var (
		store storage.Storage
		err   error
	)
	switch cfg.Driver {
	case config.DriverJSON:
		store = storage.NewFileStorage(cfg.Data, storage.WithLogger(logger))
	case config.DriverSQLite:
		store, err = storage.NewSQLiteStorage(cfg.Data, storage.WithLogger(logger))
	case config.DriverPostgres:
		store, err = storage.NewPostgresStorage(cfg.Data, storage.WithLogger(logger))
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", config.ErrInvalid, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Driver, err)
	}
	if err := store.Load(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load storage: %w", err)
	}
	logger.Info("storage ready", zap.String("driver", string(cfg.Driver)))
	return store, nil
}
