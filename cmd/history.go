// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/vidlift/vidlift/pkg/history"
	"github.com/vidlift/vidlift/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent uploads",
	Long:  `List recent upload outcomes from the shared redis history.`,
	Run:   runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	f := historyCmd.Flags()
	f.String("redis_addr", "", "Redis address holding the shared upload history. Required.")
	f.Int("count", 20, "Number of records to show")

	viper.BindPFlags(f)
}

func runHistory(cmd *cobra.Command, args []string) {
	loadConfiguration()
	fl := NewFlagLoader(cmd)

	addr := fl.String("redis_addr")
	if addr == "" {
		logger.Fatal().Msg("history requires --redis_addr (or redis_addr in the config file)")
	}

	sink := history.NewRedisSink(history.RedisConfig{Addr: addr})
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("redis unreachable")
	}

	recs, err := sink.Recent(ctx, fl.Int("count"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read history")
	}
	if len(recs) == 0 {
		fmt.Println("No uploads recorded.")
		return
	}

	for _, rec := range recs {
		status := "ok"
		detail := rec.RemoteID
		if !rec.Success {
			status = "failed"
			detail = rec.Error
		}
		fmt.Printf("%-25s %-7s %-10s %-30s %s\n",
			rec.CompletedAt.Format(time.RFC3339),
			status,
			humanize.Bytes(uint64(rec.BytesSent)),
			rec.Title,
			detail)
	}
}
