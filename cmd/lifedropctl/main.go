package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/lifedrop-api/internal/config"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "lifedropctl",
	Short:         "Operate a LifeDrop deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.yml")
	rootCmd.AddCommand(migrateCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func load() (*config.Config, *logger.Logger, error) {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Log.Level, "console").With("service", "lifedropctl"), nil
}
