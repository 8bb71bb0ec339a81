// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/vidlift/vidlift/pkg/auth"
	"github.com/vidlift/vidlift/pkg/debug"
	"github.com/vidlift/vidlift/pkg/history"
	"github.com/vidlift/vidlift/pkg/logger"
	"github.com/vidlift/vidlift/pkg/transfer"
	"github.com/vidlift/vidlift/pkg/uploader"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
)

// UploadOpts holds all configuration for the upload command
type UploadOpts struct {
	// Remote API
	APIURL         string
	BandwidthLimit int64 // bytes/sec, 0 = unlimited

	// Metadata
	Title       string
	Description string
	PublishAt   string

	// Credentials
	CredentialsDir    string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string

	// History
	RedisAddr    string
	HistoryLimit int

	DebugPort       int
	ShutdownTimeout time.Duration
}

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Upload one or more videos",
	Long: `Upload videos with resumable chunked transfers. A single file may carry
explicit metadata flags; multiple files are submitted as one batch, each
titled after its file name, and every file is validated before any upload
starts.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	f := uploadCmd.Flags()

	f.String("api_url", "https://upload.vidlift.dev", "Base URL of the upload API")
	f.Int64("bandwidth_limit", 0, "Upstream bandwidth cap in bytes/sec (0 = unlimited)")

	f.String("title", "", "Video title (single file only; defaults to the file name)")
	f.String("description", "", "Video description")
	f.String("publish_at", "", "Scheduled publish time, RFC3339 UTC (e.g. 2030-01-01T12:00:00Z)")

	f.String("credentials_dir", defaultCredentialsDir(), "Directory holding the credential blob")
	f.String("oauth_client_id", "", "OAuth2 client ID for token refresh")
	f.String("oauth_client_secret", "", "OAuth2 client secret for token refresh")
	f.String("oauth_token_url", "", "OAuth2 token endpoint for refresh")

	f.String("redis_addr", "", "Redis address for shared upload history (empty = in-memory)")
	f.Int("history_limit", history.DefaultLimit, "Maximum retained history records")

	f.Int("debug_port", 0, "Debug/metrics HTTP port (0 = disabled)")
	f.Duration("shutdown_timeout", uploader.DefaultShutdownTimeout, "How long to wait for in-flight uploads on shutdown")

	viper.BindPFlags(f)
}

func loadUploadOpts(cmd *cobra.Command) UploadOpts {
	fl := NewFlagLoader(cmd)
	return UploadOpts{
		APIURL:            fl.String("api_url"),
		BandwidthLimit:    fl.Int64("bandwidth_limit"),
		Title:             fl.String("title"),
		Description:       fl.String("description"),
		PublishAt:         fl.String("publish_at"),
		CredentialsDir:    fl.String("credentials_dir"),
		OAuthClientID:     fl.String("oauth_client_id"),
		OAuthClientSecret: fl.String("oauth_client_secret"),
		OAuthTokenURL:     fl.String("oauth_token_url"),
		RedisAddr:         fl.String("redis_addr"),
		HistoryLimit:      fl.Int("history_limit"),
		DebugPort:         fl.Int("debug_port"),
		ShutdownTimeout:   fl.Duration("shutdown_timeout"),
	}
}

func runUpload(cmd *cobra.Command, args []string) {
	loadConfiguration()
	opts := loadUploadOpts(cmd)

	debug.SetNotReady()
	if opts.DebugPort > 0 {
		debug.RegisterHandler("/buildinfo", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(VersionInfo())
		}))
		go func() {
			addr := fmt.Sprintf(":%d", opts.DebugPort)
			logger.Info().Str("addr", addr).Msg("debug server listening")
			if err := http.ListenAndServe(addr, debug.GetMux()); err != nil {
				logger.Error().Err(err).Msg("debug server stopped")
			}
		}()
	}

	store, err := auth.NewFileStore(opts.CredentialsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open credential store")
	}
	session, err := auth.NewSession(auth.SessionConfig{
		Store: store,
		Refresher: &auth.OAuthRefresher{Config: &oauth2.Config{
			ClientID:     opts.OAuthClientID,
			ClientSecret: opts.OAuthClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: opts.OAuthTokenURL},
		}},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load credential")
	}

	client := transfer.New(transfer.Config{
		BaseURL:        opts.APIURL,
		MaxBytesPerSec: opts.BandwidthLimit,
	})

	var sink history.Sink
	if opts.RedisAddr != "" {
		rs := history.NewRedisSink(history.RedisConfig{
			Addr:  opts.RedisAddr,
			Limit: opts.HistoryLimit,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", opts.RedisAddr).Msg("redis unreachable")
		}
		defer rs.Close()
		sink = rs
	} else {
		sink = history.NewMemorySink(opts.HistoryLimit)
	}

	mgr := uploader.NewManager(uploader.Config{
		Transfer:        uploader.WrapClient(client),
		Auth:            session,
		History:         sink,
		ShutdownTimeout: opts.ShutdownTimeout,
	})

	reqs, err := buildRequests(opts, args)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid arguments")
	}

	sub := mgr.Subscribe()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ids []string
	if len(reqs) == 1 {
		id, err := mgr.Submit(reqs[0])
		if err != nil {
			logger.Fatal().Err(err).Msg("submission rejected")
		}
		ids = []string{id}
	} else {
		ids, err = mgr.SubmitBatch(reqs)
		if err != nil {
			logger.Fatal().Err(err).Msg("batch rejected")
		}
	}
	logger.Info().Int("jobs", len(ids)).Str("api_url", opts.APIURL).Msg("uploads submitted")

	debug.SetReady()

	failed := watchEvents(ctx, mgr, sub, len(ids))

	closeCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout+time.Second)
	mgr.Close(closeCtx)
	cancel()

	if failed > 0 {
		os.Exit(1)
	}
}

func buildRequests(opts UploadOpts, paths []string) ([]uploader.Request, error) {
	if opts.Title != "" && len(paths) > 1 {
		return nil, fmt.Errorf("--title applies to a single file, got %d", len(paths))
	}

	reqs := make([]uploader.Request, 0, len(paths))
	for _, p := range paths {
		title := opts.Title
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		}
		reqs = append(reqs, uploader.Request{
			Path:        p,
			Title:       title,
			Description: opts.Description,
			PublishAt:   opts.PublishAt,
		})
	}
	return reqs, nil
}

// watchEvents logs progress until every submitted job settles. An interrupt
// requests cancellation once; jobs still settle through the event stream.
// Returns the number of failed jobs.
func watchEvents(ctx context.Context, mgr *uploader.Manager, sub *uploader.Subscription, total int) int {
	settled, failed := 0, 0
	interrupt := ctx.Done()

	for settled < total {
		select {
		case <-interrupt:
			interrupt = nil
			n := mgr.CancelAll()
			logger.Warn().Int("active", n).Msg("interrupt received, cancelling uploads")

		case evt, ok := <-sub.C():
			if !ok {
				return failed
			}
			switch evt.Type {
			case uploader.EventJobProgress:
				s := evt.Snapshot
				logger.Info().
					Str("job_id", s.JobID).
					Str("state", string(s.State)).
					Int("percent", s.Percent).
					Msg(s.Message)

			case uploader.EventJobCompleted:
				settled++
				if evt.Success {
					logger.Info().
						Str("job_id", evt.JobID).
						Str("remote_id", evt.RemoteID).
						Msg("upload completed")
				} else {
					failed++
					logger.Error().
						Str("job_id", evt.JobID).
						Str("error", evt.Err).
						Msg("upload failed")
				}

			case uploader.EventBatchProgress:
				logger.Info().
					Int("completed", evt.Batch.Completed).
					Int("failed", evt.Batch.Failed).
					Int("total", evt.Batch.Total).
					Msg("batch progress")

			case uploader.EventBatchCompleted:
				logger.Info().
					Int("completed", evt.Batch.Completed).
					Int("failed", evt.Batch.Failed).
					Msg("batch finished")
			}
		}
	}
	return failed
}
