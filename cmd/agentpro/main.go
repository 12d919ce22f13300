// agentpro drives a multi-stage generation pipeline: a business analysis,
// architecture, implementation, qa, audit, and documentation stage run in
// dependency order against a completion backend, with durable per-project
// state so interrupted runs resume where they left off.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amin-amout/agentpro/internal/artifact"
	"github.com/amin-amout/agentpro/internal/config"
	"github.com/amin-amout/agentpro/internal/logging"
	"github.com/amin-amout/agentpro/internal/state"
)

var (
	// Global flags
	verbose   bool
	workspace string
)

var rootCmd = &cobra.Command{
	Use:   "agentpro",
	Short: "agentpro - dependency-aware generation pipeline",
	Long: `agentpro turns a plain-language project description into a set of
generated artifacts by running six specialist stages over a completion
backend: business analysis, architecture, implementation, qa, audit, and
documentation. Stages run concurrently where their dependencies allow,
every status transition is persisted, and interrupted or failed runs
resume from the last completed stage.`,
	SilenceUsage: true,
}

// app bundles the collaborators every command needs.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	syncLog   func()
	artifacts *artifact.Store
	states    *state.Store
}

func newApp() (*app, error) {
	dir := workspace
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		dir = wd
	}
	if err := config.Init(dir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	logger, syncLog, err := logging.New(logging.Options{Dir: cfg.LogDir(), Verbose: verbose})
	if err != nil {
		return nil, err
	}
	artifacts, err := artifact.NewStore(cfg.Paths.Projects)
	if err != nil {
		syncLog()
		return nil, err
	}
	states, err := state.NewStore(cfg.Paths.Projects)
	if err != nil {
		syncLog()
		return nil, err
	}
	return &app{
		cfg:       cfg,
		logger:    logger,
		syncLog:   syncLog,
		artifacts: artifacts,
		states:    states,
	}, nil
}

func (a *app) close() {
	if a.syncLog != nil {
		a.syncLog()
	}
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to the console")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (defaults to the current directory)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
