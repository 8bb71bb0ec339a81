// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vidlift/vidlift/pkg/auth"
	"github.com/vidlift/vidlift/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Install a credential from a token file",
	Long: `Install an OAuth2 token obtained out of band. The token file is JSON with
at least an access_token field; refresh_token and expiry enable automatic
renewal.`,
	Run: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credential",
	Run:   runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	f := loginCmd.Flags()
	f.String("token_file", "", "Path to the JSON token file. Required.")
	loginCmd.MarkFlagRequired("token_file")

	viper.BindPFlags(f)
}

func runLogin(cmd *cobra.Command, args []string) {
	loadConfiguration()
	fl := NewFlagLoader(cmd)

	data, err := os.ReadFile(fl.String("token_file"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read token file")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		logger.Fatal().Err(err).Msg("token file is not valid JSON")
	}
	if tok.AccessToken == "" {
		logger.Fatal().Msg("token file has no access_token")
	}

	store, err := auth.NewFileStore(credentialsDir())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open credential store")
	}
	if err := store.Save(&tok); err != nil {
		logger.Fatal().Err(err).Msg("failed to persist credential")
	}
	fmt.Println("Credential installed.")
}

func runLogout(cmd *cobra.Command, args []string) {
	loadConfiguration()

	store, err := auth.NewFileStore(credentialsDir())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open credential store")
	}
	if err := store.Clear(); err != nil {
		logger.Fatal().Err(err).Msg("failed to remove credential")
	}
	fmt.Println("Credential removed.")
}

// credentialsDir resolves the credential directory from config or default.
func credentialsDir() string {
	if dir := viper.GetString("credentials_dir"); dir != "" {
		return dir
	}
	return defaultCredentialsDir()
}
