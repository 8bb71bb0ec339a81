// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/vidlift/vidlift/pkg/auth"
	"github.com/vidlift/vidlift/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	f := statusCmd.Flags()
	f.String("credentials_dir", defaultCredentialsDir(), "Directory holding the credential blob")

	viper.BindPFlags(f)
}

func runStatus(cmd *cobra.Command, args []string) {
	loadConfiguration()
	fl := NewFlagLoader(cmd)

	store, err := auth.NewFileStore(fl.String("credentials_dir"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open credential store")
	}
	session, err := auth.NewSession(auth.SessionConfig{Store: store})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load credential")
	}

	info := session.Info()
	if !info.Authenticated {
		fmt.Println("Authenticated: no")
		fmt.Println("Run 'vidlift login --token_file <file>' to install a credential.")
		return
	}

	fmt.Println("Authenticated: yes")
	if !info.ExpiresAt.IsZero() {
		fmt.Printf("  Expires:      %s (%s)\n",
			info.ExpiresAt.Format(time.RFC3339), humanize.Time(info.ExpiresAt))
	}
	if !info.LastRefresh.IsZero() {
		fmt.Printf("  Last refresh: %s\n", humanize.Time(info.LastRefresh))
	}
}
