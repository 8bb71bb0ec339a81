// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/vidlift/vidlift/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "vidlift",
	Short: "Vidlift - concurrent video upload orchestration",
	Long: `Vidlift uploads videos to a remote hosting API with resumable chunked
transfers, per-job progress reporting, batch accounting, and cooperative
cancellation.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config_dir", ".", "Directory for configuration files")
}

// loadConfiguration merges the optional vidlift config file into viper.
// Missing files are fine; flags and env vars still apply.
func loadConfiguration() bool {
	viper.SetConfigName("vidlift")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.vidlift")
	viper.AddConfigPath("/etc/vidlift/")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Debug().Msg("no config file found")
			return false
		}
		logger.Warn().Err(err).Msg("failed to load config file")
		return false
	}
	logger.Info().Str("file", viper.ConfigFileUsed()).Msg("loaded config file")
	return true
}

// defaultCredentialsDir is where the bearer credential is persisted unless
// overridden by --credentials_dir.
func defaultCredentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vidlift"
	}
	return filepath.Join(home, ".vidlift", "private")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
