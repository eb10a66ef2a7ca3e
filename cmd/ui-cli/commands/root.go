// Package commands implements the ui-cli operator subcommands: offline
// maintenance tasks (backfill, migration, script reload, chain inspection)
// that run directly against the store rather than through the Tool
// Dispatcher.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/8agana/unified-intelligence/internal/collaborator"
	"github.com/8agana/unified-intelligence/internal/config"
	"github.com/8agana/unified-intelligence/internal/embedding"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/scripts"
	"github.com/8agana/unified-intelligence/internal/store"
)

var (
	cfgFile    string
	instanceID string
	verbose    bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "ui-cli",
	Short: "UnifiedIntelligence operator CLI",
	Long: `ui-cli runs offline maintenance tasks against the UnifiedIntelligence
store directly: backfilling embeddings, migrating legacy session-summary
keys, reloading Lua scripts, and inspecting reasoning chains.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&instanceID, "instance", "", "instance id (defaults to config's instance_id)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// deps bundles the process-scoped collaborators every subcommand needs,
// built the same way cmd/ui-server wires them.
type deps struct {
	cfg        *config.Config
	log        *observability.Logger
	gw         *store.Gateway
	scripts    *scripts.Cache
	embeddings *embedding.Pipeline
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if instanceID != "" {
		cfg.InstanceID = instanceID
	}

	logLevel := cfg.Observability.LogLevel
	if verbose {
		logLevel = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       logLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "ui-cli",
	})

	gw := store.New(store.Config{
		Addr:            cfg.Store.Addr,
		Password:        cfg.Store.Password,
		DB:              cfg.Store.DB,
		MaxPoolSize:     cfg.Store.MaxPoolSize,
		PoolWaitTimeout: cfg.Store.PoolWaitTimeout,
		DialTimeout:     cfg.Store.DialTimeout,
		ReadTimeout:     cfg.Store.ReadTimeout,
		WriteTimeout:    cfg.Store.WriteTimeout,
	}, logger)

	scriptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	scriptCache, err := scripts.New(scriptCtx, gw)
	cancel()
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}

	collab := collaborator.New(collaborator.Config{
		APIKey:         os.Getenv("OPENROUTER_API_KEY"),
		EmbeddingModel: cfg.Embedding.Model,
	})
	embeddings := embedding.New(gw, collab, embedding.Config{
		Dims:            cfg.Embedding.Dimensions,
		HNSWM:           cfg.Embedding.HNSWMaxConnections,
		HNSWEFConstruct: cfg.Embedding.HNSWEFConstruction,
	}, logger)

	return &deps{cfg: cfg, log: logger, gw: gw, scripts: scriptCache, embeddings: embeddings}, nil
}

func (d *deps) Close() {
	_ = d.gw.Close()
}
