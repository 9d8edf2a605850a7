// Copyright (c) 2023 Tim <tbckr>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbckr/dixcover/internal/config"
	"github.com/tbckr/dixcover/internal/httpapi"
	"github.com/tbckr/dixcover/internal/httpclient"
	"github.com/tbckr/dixcover/internal/inventory"
	"github.com/tbckr/dixcover/internal/metrics"
	"github.com/tbckr/dixcover/internal/notify"
	"github.com/tbckr/dixcover/internal/prober"
	"github.com/tbckr/dixcover/internal/probesweep"
	"github.com/tbckr/dixcover/internal/readapi"
	"github.com/tbckr/dixcover/internal/reservation"
	"github.com/tbckr/dixcover/internal/scan"
	"github.com/tbckr/dixcover/internal/scheduler"
	"github.com/tbckr/dixcover/internal/sources/crtsh"
	"github.com/tbckr/dixcover/internal/sources/otx"
	"github.com/tbckr/dixcover/internal/sources/shodan"
	"github.com/tbckr/dixcover/internal/sources/virustotal"
	"github.com/tbckr/dixcover/internal/store"
)

func main() {
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(db.DB.DB); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	scanClient, err := httpclient.New("", "", logger, false)
	if err != nil {
		return fmt.Errorf("building scan http client: %w", err)
	}
	probeClient, err := httpclient.New("", "", logger, false)
	if err != nil {
		return fmt.Errorf("building probe http client: %w", err)
	}
	probeClient.SetTimeout(cfg.ProberTimeout)
	if cfg.ProberInsecureSkipVerify {
		probeClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // operator opt-in for self-signed internal hosts
	}
	notifyClient, err := httpclient.New("", "", logger, false)
	if err != nil {
		return fmt.Errorf("building notify http client: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	repo := inventory.NewRepository(logger, m)

	crtshSvc := crtsh.NewService(crtsh.NewClient(scanClient, logger), repo, logger)
	otxSvc := otx.NewService(otx.NewClient(scanClient, cfg.OTXAPIKey, logger), repo, logger, cfg.OTXAPIKey)
	shodanSvc := shodan.NewService(shodan.NewClient(scanClient, cfg.ShodanAPIKey, logger), repo, logger, cfg.ShodanAPIKey)
	vtSvc := virustotal.NewService(virustotal.NewClient(scanClient, cfg.VirusTotalAPIKey, logger), repo, logger, cfg.VirusTotalAPIKey)

	coordinator := scan.New(db.DB, logger, cfg.ScanSourceTimeout, m, crtshSvc, otxSvc, shodanSvc, vtSvc)
	reservations := reservation.NewStore(db.DB, logger)

	prb := prober.New(probeClient, logger)
	notifier := notify.New(notifyClient, logger, cfg.SlackWebhookURL, cfg.DiscordWebhookURL, cfg.SlackMention, cfg.DiscordMention, m)
	sweep := probesweep.New(db.DB, repo, prb, notifier, logger, cfg.ProberMaxWorkers, m)

	runScan := func(ctx context.Context, domain string) {
		if err := reservations.Refresh(ctx, domain); err != nil {
			logger.Error("scheduled scan: refreshing reservation failed", "domain", domain, "err", err)
		}
		coordinator.Run(ctx, domain, "scheduled")
	}
	runProbe := func(ctx context.Context) {
		if err := sweep.Run(ctx, 0); err != nil {
			logger.Error("scheduled probe: sweep failed", "err", err)
		}
	}

	sched := scheduler.New(db.DB, logger, runScan, runProbe)
	if err := sched.Start(ctx); err != nil {
		logger.Error("starting scheduler failed; continuing without scheduled jobs", "err", err)
	} else {
		defer sched.Stop()
		if err := sched.ScheduleProbe(ctx); err != nil {
			logger.Error("scheduling daily probe failed", "err", err)
		}
	}

	reader := readapi.NewReader(db.DB)

	onScanRequest := func(r *http.Request, apex string) error {
		if err := reservations.Acquire(r.Context(), apex, false); err != nil {
			return err
		}
		if err := sched.ScheduleScan(r.Context(), apex); err != nil {
			logger.Error("scheduling daily scan failed", "domain", apex, "err", err)
		}
		go coordinator.Run(context.Background(), apex, "manual")
		return nil
	}
	onProbeRequest := func(r *http.Request, limit int) {
		go func() {
			if err := sweep.Run(context.Background(), limit); err != nil {
				logger.Error("manual probe sweep failed", "err", err)
			}
		}()
	}

	handler := httpapi.New(logger, reader, onScanRequest, onProbeRequest)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dixcoverd: listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("dixcoverd: graceful shutdown failed", "err", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
