// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/edgerelay/edgerelay/lib/buffer"
	"github.com/edgerelay/edgerelay/lib/clock"
	"github.com/edgerelay/edgerelay/lib/config"
	"github.com/edgerelay/edgerelay/lib/queue"
	"github.com/edgerelay/edgerelay/lib/reporter"
	"github.com/edgerelay/edgerelay/lib/service"
	"github.com/edgerelay/edgerelay/lib/transport"
)

// agent owns every long-lived piece of the process.
type agent struct {
	config   *config.Config
	clock    clock.Clock
	logger   *slog.Logger
	registry *prometheus.Registry

	outbound *queue.Queue[reporter.Record]
	inbound  *queue.Queue[string]
	session  *reporter.Session
	buffer   buffer.Buffer
	reporter *reporter.Reporter
	socket   *service.SocketServer
	started  time.Time

	// closers run in reverse order once every goroutine has stopped.
	closers []io.Closer
}

func newAgent(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*agent, error) {
	a := &agent{
		config:   cfg,
		clock:    clk,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		outbound: queue.New[reporter.Record](cfg.Queues.Outbound, clk),
		inbound:  queue.New[string](cfg.Queues.Inbound, clk),
		session:  reporter.NewSession(cfg.Session),
		started:  clk.Now(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := reporter.NewMetrics(a.registry)

	buf, err := a.openBuffer()
	if err != nil {
		return nil, err
	}
	a.buffer = buf

	delivery, err := a.newDelivery(metrics)
	if err != nil {
		a.close()
		return nil, err
	}

	aggregator := reporter.NewAggregator(a.outbound, buf, a.session,
		cfg.Reporter.DrainWait, cfg.Reporter.MaxBatchRecords,
		logger.With("component", "aggregator"), metrics)
	a.reporter = reporter.New(buf, aggregator, delivery, cfg.Reporter.PollWait,
		logger.With("component", "reporter"), metrics)

	if cfg.Ingest.Socket != "" {
		a.socket = service.NewSocketServer(cfg.Ingest.Socket, 0o660, logger.With("component", "ingest"))
		a.registerActions(a.socket)
	}
	return a, nil
}

func (a *agent) openBuffer() (buffer.Buffer, error) {
	capacity := a.config.BufferCapacity()
	if a.config.Buffer.Mode == config.BufferMemory {
		return buffer.NewMemory(capacity), nil
	}

	path := a.config.Buffer.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating buffer directory: %w", err)
	}
	disk, err := buffer.OpenDisk(path, buffer.DiskOptions{
		Capacity: capacity,
		Sync:     a.config.Buffer.Sync,
		Logger:   a.logger.With("component", "buffer"),
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, disk)
	return disk, nil
}

func (a *agent) newDelivery(metrics *reporter.Metrics) (*reporter.Delivery, error) {
	cfg := a.config
	encoding, err := transport.ParseEncoding(cfg.Delivery.Encoding)
	if err != nil {
		return nil, err
	}
	options := reporter.DeliveryOptions{
		Retries:        cfg.Delivery.Retries,
		InitialBackoff: cfg.Delivery.InitialBackoff,
		Topics:         transport.DefaultTopics(cfg.Delivery.TopicPrefix),
		Encoding:       encoding,
		Clock:          a.clock,
		Logger:         a.logger.With("component", "delivery"),
		Metrics:        metrics,
	}
	transportLogger := a.logger.With("component", "transport", "transport", cfg.Transport)

	switch cfg.Transport {
	case config.TransportHTTP:
		t := transport.NewHTTP(transport.HTTPOptions{
			URL:      cfg.Server,
			Username: cfg.Username,
			Password: cfg.Password,
			Encoding: encoding,
			Timeout:  cfg.Delivery.RequestTimeout,
		})
		return reporter.NewHTTPDelivery(t, a.inbound, options), nil

	case config.TransportMQTT:
		t := transport.NewMQTT(transport.MQTTOptions{
			Broker:    cfg.Server,
			ClientID:  cfg.DeviceID,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Timeout:   cfg.Delivery.PublishTimeout,
			Keepalive: cfg.Delivery.Keepalive,
			Clock:     a.clock,
			Logger:    transportLogger,
		})
		a.closers = append(a.closers, t)
		return reporter.NewPubSubDelivery(t, a.inbound, a.session, options), nil

	case config.TransportRedis:
		t := transport.NewRedis(transport.RedisOptions{
			Addr:     cfg.Server,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Delivery.PublishTimeout,
			Clock:    a.clock,
			Logger:   transportLogger,
		})
		a.closers = append(a.closers, t)
		return reporter.NewPubSubDelivery(t, a.inbound, a.session, options), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// listen binds the ingest socket so clients can connect as soon as it
// returns.
func (a *agent) listen() error {
	if a.socket == nil {
		return nil
	}
	return a.socket.Listen()
}

// run blocks until ctx is cancelled or a component fails, then
// releases the buffer and transport.
func (a *agent) run(ctx context.Context) error {
	defer a.close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.reporter.Run(ctx) })
	if a.socket != nil {
		group.Go(func() error { return a.socket.Serve(ctx) })
	}
	if a.config.Metrics.Listen != "" {
		group.Go(func() error { return a.serveMetrics(ctx) })
	}

	a.logger.Info("edgerelay running",
		"transport", a.config.Transport,
		"server", a.config.Server,
		"buffer", a.config.Buffer.Mode,
		"capacity", a.buffer.Capacity(),
		"session", a.session.Get(),
	)
	err := group.Wait()
	a.outbound.Close()
	a.inbound.Close()
	return err
}

func (a *agent) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              a.config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe() }()
	a.logger.Info("metrics listening", "address", a.config.Metrics.Listen)

	select {
	case err := <-done:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}

func (a *agent) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
