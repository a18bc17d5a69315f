// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package downloader fetches release artefacts pinned by checksum.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

const (
	// ChecksumMismatch is returned when the downloaded content does not
	// hash to the expected value. It is not retried.
	ChecksumMismatch = errors.ConstError("checksum mismatch")

	// MaxSize bounds the size of a download.
	MaxSize = 256 << 20

	defaultAttempts = 3
	defaultDelay    = time.Second
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Logger is the logging interface used by the downloader.
type Logger interface {
	Debugf(string, ...interface{})
	Warningf(string, ...interface{})
}

// Config holds the dependencies of a Downloader.
type Config struct {
	Doer     Doer
	Clock    clock.Clock
	Logger   Logger
	Attempts int
	Delay    time.Duration
}

// Downloader downloads files over HTTP.
type Downloader struct {
	cfg Config
}

// New returns a new Downloader. Unset fields of cfg get defaults.
func New(cfg Config) *Downloader {
	if cfg.Doer == nil {
		cfg.Doer = http.DefaultClient
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = loggo.GetLogger("script-exporter.downloader")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDelay
	}
	return &Downloader{cfg: cfg}
}

// Fetch downloads url and verifies that its content hashes to the
// hex encoded SHA-256 digest sum. Transient failures are retried.
func (d *Downloader) Fetch(ctx context.Context, url, sum string) ([]byte, error) {
	want := strings.ToLower(strings.TrimSpace(sum))
	if want == "" {
		return nil, errors.NotValidf("empty checksum for %q", url)
	}
	var data []byte
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			data, err = d.fetchOnce(ctx, url, want)
			return err
		},
		IsFatalError: func(err error) bool {
			return errors.Is(err, ChecksumMismatch) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			d.cfg.Logger.Warningf("download of %q failed (attempt %d): %v", url, attempt, err)
		},
		Attempts: d.cfg.Attempts,
		Delay:    d.cfg.Delay,
		Clock:    d.cfg.Clock,
		Stop:     ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsDurationExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "cannot download %q", url)
	}
	return data, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, url, want string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	d.cfg.Logger.Debugf("downloading %q", url)
	resp, err := d.cfg.Doer.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("bad http response: %v", resp.Status)
	}

	hash := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(resp.Body, MaxSize+1), hash))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(data) > MaxSize {
		return nil, errors.Errorf("download exceeds %d bytes", MaxSize)
	}
	if got := hex.EncodeToString(hash.Sum(nil)); got != want {
		return nil, fmt.Errorf("got sha256 %s, expected %s: %w", got, want, ChecksumMismatch)
	}
	return data, nil
}
