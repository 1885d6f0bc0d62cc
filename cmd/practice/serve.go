package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/danieldreier/mcp-practice/internal/config"
	"github.com/danieldreier/mcp-practice/internal/practice"
	"github.com/danieldreier/mcp-practice/internal/storage"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve practice sessions over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					a.logger.Warn("failed to close storage", zap.Error(err))
				}
			}()

			s := newServer(a.cfg, store, a.logger)
			a.logger.Info("serving practice sessions on stdio", zap.String("default_mode", string(a.cfg.Mode)))
			if err := server.ServeStdio(s); err != nil {
				return fmt.Errorf("error serving MCP server: %w", err)
			}
			return nil
		},
	}
}

// newServer wires a practice controller over store into an MCP server.
func newServer(cfg config.Config, store storage.Storage, logger *zap.Logger) *server.MCPServer {
	opts := []practice.Option{practice.WithLogger(logger.Named("practice"))}
	if cfg.Seed != 0 {
		opts = append(opts, practice.WithRand(rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))))
	}
	ctrl := practice.NewController(store, opts...)

	s := server.NewMCPServer(
		"Practice MCP",
		"1.0.0",
		server.WithInstructions(practiceServerInfo),
		server.WithResourceCapabilities(false, false),
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)
	registerTools(s, newHandlers(ctrl, store, cfg.Mode, logger.Named("mcp")))
	return s
}
