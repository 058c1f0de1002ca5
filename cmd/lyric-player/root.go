package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lyric-player/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "lyric-player",
	Short:         "Playlist player with synchronized lyrics",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/lyric-player/config.toml)")
}

func loadConfig() *config.Config {
	if configPath == "" {
		return config.Load()
	}
	return config.LoadFrom(configPath)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
