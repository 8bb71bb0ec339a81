// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer implements the resumable chunked upload protocol of the
// remote video-hosting API. A Client initiates an upload session and the
// returned Session sends fixed-size chunks until the remote side answers
// with the created resource ID.
//
// The client never retries on its own: a failed or cancelled upload must be
// resubmitted by the caller as a brand-new session.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/vidlift/vidlift/pkg/logger"

	"golang.org/x/time/rate"
)

// DefaultChunkSize is the fixed chunk size for resumable uploads (1 MB).
const DefaultChunkSize = 1 << 20

// Config holds configuration for the transfer client.
type Config struct {
	// BaseURL of the remote upload API, without trailing slash.
	BaseURL string

	// ChunkSize overrides DefaultChunkSize (tests only).
	ChunkSize int64

	// MaxBytesPerSec optionally caps upstream bandwidth. Zero disables
	// the limiter.
	MaxBytesPerSec int64

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
}

// Client initiates resumable upload sessions.
type Client struct {
	baseURL   string
	chunkSize int64
	http      *http.Client
	limiter   *rate.Limiter
}

// New creates a transfer client.
func New(cfg Config) *Client {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:    16,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}

	var limiter *rate.Limiter
	if cfg.MaxBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxBytesPerSec), int(cfg.ChunkSize))
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		chunkSize: cfg.ChunkSize,
		http:      cfg.HTTPClient,
		limiter:   limiter,
	}
}

// Chunk reports the outcome of one chunk round-trip.
type Chunk struct {
	// BytesSent is the cumulative byte count acknowledged by the remote.
	BytesSent int64
	// Done is true when the remote returned the terminal response.
	Done bool
	// RemoteID is the created resource ID, set only when Done.
	RemoteID string
}

// Session is one resumable upload in flight. Not safe for concurrent use;
// each session belongs to exactly one worker.
type Session struct {
	client    *Client
	uploadURL string
	token     string

	file *os.File
	size int64
	sent int64
	buf  []byte
	done bool
}

type initiateResponse struct {
	UploadURL string `json:"uploadUrl"`
}

type terminalResponse struct {
	ID string `json:"id"`
}

// Start validates metadata, opens the local file and initiates a resumable
// upload session with the remote API. No bytes are sent if validation fails.
func (c *Client) Start(ctx context.Context, path string, meta Metadata, token string) (*Session, error) {
	meta.normalize(path)
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	body, err := json.Marshal(meta)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("transfer: marshal metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/videos?uploadType=resumable", bytes.NewReader(body))
	if err != nil {
		f.Close()
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(st.Size(), 10))
	req.Header.Set("X-Upload-Content-Type", meta.MimeType)

	resp, err := c.http.Do(req)
	if err != nil {
		f.Close()
		return nil, transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		f.Close()
		return nil, classify(resp.StatusCode, readBody(resp.Body))
	}

	uploadURL := resp.Header.Get("Location")
	if uploadURL == "" {
		var ir initiateResponse
		if err := json.NewDecoder(resp.Body).Decode(&ir); err == nil {
			uploadURL = ir.UploadURL
		}
	}
	if uploadURL == "" {
		f.Close()
		return nil, &Error{Reason: ReasonTransport, Status: resp.StatusCode,
			Detail: "initiate response missing upload URL"}
	}

	logger.Ctx(ctx).Debug().
		Str("path", path).
		Int64("size", st.Size()).
		Str("mime", meta.MimeType).
		Msg("transfer: session initiated")

	return &Session{
		client:    c,
		uploadURL: uploadURL,
		token:     token,
		file:      f,
		size:      st.Size(),
		buf:       make([]byte, c.chunkSize),
	}, nil
}

// Size returns the total size of the local resource in bytes.
func (s *Session) Size() int64 {
	return s.size
}

// NextChunk sends the next fixed-size chunk and blocks on its round-trip.
// It returns the cumulative acknowledged byte count, or the terminal result
// when the remote answers with the created resource ID.
func (s *Session) NextChunk(ctx context.Context) (Chunk, error) {
	if s.done {
		return Chunk{}, &Error{Reason: ReasonTransport, Detail: "session already finished"}
	}

	n, err := s.file.ReadAt(s.buf, s.sent)
	if err != nil && err != io.EOF {
		return Chunk{}, transportErr(err)
	}
	if n == 0 && s.sent < s.size {
		return Chunk{}, transportErr(io.ErrUnexpectedEOF)
	}

	if s.client.limiter != nil && n > 0 {
		if err := s.client.limiter.WaitN(ctx, n); err != nil {
			return Chunk{}, transportErr(err)
		}
	}

	start, end := s.sent, s.sent+int64(n)-1
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uploadURL, bytes.NewReader(s.buf[:n]))
	if err != nil {
		return Chunk{}, transportErr(err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Length", strconv.Itoa(n))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, s.size))

	resp, err := s.client.http.Do(req)
	if err != nil {
		return Chunk{}, transportErr(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPermanentRedirect: // 308: intermediate, chunk accepted
		s.sent += int64(n)
		return Chunk{BytesSent: s.sent}, nil

	case http.StatusOK, http.StatusCreated:
		s.sent += int64(n)
		s.done = true
		var tr terminalResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil || tr.ID == "" {
			return Chunk{}, &Error{Reason: ReasonTransport, Status: resp.StatusCode,
				Detail: "terminal response missing resource id"}
		}
		return Chunk{BytesSent: s.sent, Done: true, RemoteID: tr.ID}, nil

	default:
		return Chunk{}, classify(resp.StatusCode, readBody(resp.Body))
	}
}

// Close releases the local file handle.
func (s *Session) Close() error {
	return s.file.Close()
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(bytes.TrimSpace(b))
}
