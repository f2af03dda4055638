package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jayminstro/gaplyv2-sub004/internal/config"
	"github.com/jayminstro/gaplyv2-sub004/internal/engine"
	"github.com/jayminstro/gaplyv2-sub004/internal/remote"
)

var (
	configPath string
	ownerID    string
)

var rootCmd = &cobra.Command{
	Use:   "gaply",
	Short: "Local-first task and gap scheduling engine",
	Long: `Gaply keeps tasks and free-time gaps in a local SQLite database,
computes availability per day, and synchronizes with a remote service
when one is configured and reachable. All commands work offline;
mutations queue locally and drain on the next successful sync.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "Owner id for records (defaults to GAPLY_OWNER or \"local\")")
}

// resolveOwner applies the flag > env > default precedence.
func resolveOwner() string {
	if ownerID != "" {
		return ownerID
	}
	if v := os.Getenv("GAPLY_OWNER"); v != "" {
		return v
	}
	return "local"
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine builds and starts the engine for one command invocation.
// The caller must Stop it.
func openEngine() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var tokens remote.TokenProvider
	if cfg.Remote.AuthToken != "" {
		tokens = remote.StaticTokens(cfg.Remote.AuthToken)
	}

	e, err := engine.New(cfg, resolveOwner(), tokens)
	if err != nil {
		return nil, err
	}
	if err := e.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
