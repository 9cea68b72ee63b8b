// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command histocube runs the staged histogram aggregation pipeline.
//
// Usage:
//
//	# Complete run: book, ingest samples, harvest, persist
//	histocube run --config config.yaml --samples samples.jsonl
//
//	# Ingest from stdin
//	generator | histocube run --config config.yaml
//
//	# Serve the inspection API over an existing store
//	histocube serve --config config.yaml
//
//	# Dump one stored histogram as JSON
//	histocube inspect --config config.yaml PXBarrel/PXLayer_1/num_digis
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/histocube/pkg/cube"
	"github.com/AleutianAI/histocube/pkg/logging"
	"github.com/AleutianAI/histocube/pkg/store"
	"github.com/AleutianAI/histocube/pkg/telemetry"
	"github.com/AleutianAI/histocube/services/aggregator"
)

var (
	configPath  string
	samplesPath string
	serveAddr   string
	logLevel    string
	logDir      string

	rootCmd = &cobra.Command{
		Use:   "histocube",
		Short: "Staged histogram aggregation engine",
		Long: `histocube books histograms over a declared attribute domain, fills
them from a sample stream with per-frame harvesting, and derives
summary histograms in an offline harvesting pass.`,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute one complete aggregation run",
		Long:  `Books every reachable histogram, ingests the sample stream, runs the offline harvest, and persists the results.`,
		RunE:  runRun,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the inspection API over the configured store",
		RunE:  runServe,
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect [path]",
		Short: "Print one stored histogram as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "service configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (disabled if empty)")
	runCmd.Flags().StringVarP(&samplesPath, "samples", "s", "-", "JSON-lines sample file, - for stdin")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(runCmd, serveCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *logging.Logger {
	level := logging.LevelInfo
	switch logLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "histocube",
	})
}

// openStore opens the configured store backend. The returned close
// function flushes and releases it.
func openStore(cfg *aggregator.Config, log *logging.Logger) (cube.Store, aggregator.Inspector, func() error, error) {
	switch cfg.Store.Backend {
	case "memory":
		s := store.NewMemoryStore()
		return s, s, func() error { return nil }, nil
	case "badger":
		s, err := store.OpenBadger(store.BadgerConfig{
			Path:       cfg.Store.Path,
			InMemory:   cfg.Store.InMemory,
			SyncWrites: cfg.Store.SyncWrites,
			Logger:     log.Slog(),
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, s.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Close()

	cfg, err := aggregator.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	st, _, closeStore, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	svc, err := aggregator.New(cfg, st, log)
	if err != nil {
		return err
	}

	var samples io.Reader = os.Stdin
	if samplesPath != "-" {
		f, err := os.Open(samplesPath)
		if err != nil {
			return fmt.Errorf("open samples: %w", err)
		}
		defer f.Close()
		samples = f
	}

	if err := svc.Run(ctx, samples); err != nil {
		return err
	}
	status := svc.Status()
	log.Info("run finished",
		"run_id", status.RunID,
		"samples", status.Samples,
		"frames", status.Frames,
		"malformed", status.Malformed,
	)
	return closeStore()
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Close()

	cfg, err := aggregator.LoadConfig(configPath)
	if err != nil {
		return err
	}
	addr := cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if addr == "" {
		addr = ":8085"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	st, inspector, closeStore, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	svc, err := aggregator.New(cfg, st, log)
	if err != nil {
		return err
	}

	router := aggregator.NewRouter(aggregator.NewHandlers(svc, inspector))
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("inspection API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Close()

	cfg, err := aggregator.LoadConfig(configPath)
	if err != nil {
		return err
	}
	_, inspector, closeStore, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	h, ok := inspector.Get(args[0])
	if !ok {
		return fmt.Errorf("no histogram at %q", args[0])
	}
	data, err := json.MarshalIndent(h.Histogram(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode histogram: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
