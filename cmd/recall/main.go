// Package main is the entry point for the recall CLI: persistent project
// memory for LLM coding assistants. Constraints, decisions, and heuristics
// are stored per project, retrieved by embedding similarity, re-ranked by
// friction feedback, and assembled into token-budgeted prompt context.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/recall/internal/config"
	"github.com/normanking/recall/internal/data"
	"github.com/normanking/recall/internal/embedding"
	"github.com/normanking/recall/internal/memory"
	"github.com/normanking/recall/internal/registry"
)

var (
	version = "0.1.0"

	cfgPath string
	dbPath  string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "Persistent project memory for LLM coding assistants",
		Long: `Recall keeps a per-project memory of constraints, decisions, and
heuristics, retrieves the relevant ones by similarity when a prompt comes
in, and assembles them into a token-budgeted context for the model.

Add a memory:      recall add constraint "Always validate input"
Search memories:   recall search "database"
Build context:     recall context "Should I use async or sync I/O?"
Report friction:   recall friction --describe "the async advice" --type correction --delta -2`,
		PersistentPreRun: initLogging,
		SilenceUsage:     true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.recall/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		addCmd(),
		searchCmd(),
		contextCmd(),
		frictionCmd(),
		decayCmd(),
		listCmd(),
		deleteCmd(),
		statsCmd(),
		sessionCmd(),
		importCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zlog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("recall v%s\n", version)
		},
	}
}

// app bundles the wired components behind every subcommand.
type app struct {
	cfg       *config.Config
	db        *data.DB
	embedder  embedding.Embedder
	store     *memory.Store
	retriever *memory.Retriever
	builder   *memory.ContextBuilder
}

// openApp loads configuration, opens the project store, and wires the
// retrieval stack. Callers must Close.
func openApp() (*app, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	path := cfg.Store.DBPath
	if dbPath != "" {
		path = dbPath
	}

	db, err := data.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder := embedding.NewWithFallback(context.Background(), cfg.Embedding.ToEmbedderConfig())
	store := memory.NewStore(db, embedder.Dimension())
	retriever := memory.NewRetriever(store, embedder, cfg.Retrieval.ToRetrieverConfig())
	builder := memory.NewContextBuilder(retriever, cfg.Context.ToTokenBudget())

	// Best-effort global registry update; never blocks the command.
	if regPath, err := registry.DefaultPath(); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			registry.Touch(regPath, projectName(abs), abs)
		}
	}

	return &app{
		cfg:       cfg,
		db:        db,
		embedder:  embedder,
		store:     store,
		retriever: retriever,
		builder:   builder,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		zlog.Warn().Err(err).Msg("close store")
	}
}

// projectName derives a display name from the store location, assuming the
// conventional <project>/.recall/memory.db layout.
func projectName(absDBPath string) string {
	dir := filepath.Dir(absDBPath)
	if filepath.Base(dir) == ".recall" {
		dir = filepath.Dir(dir)
	}
	return filepath.Base(dir)
}
