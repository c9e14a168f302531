// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/edgerelay/edgerelay/lib/clock"
	"github.com/edgerelay/edgerelay/lib/config"
	"github.com/edgerelay/edgerelay/lib/service"
	"github.com/edgerelay/edgerelay/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	logLevel    string
	server      string
	transport   string
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("edgerelay", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to edgerelay.yaml (default: $EDGERELAY_CONFIG)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.StringVar(&opts.server, "server", "", "override the collector URL or broker address")
	flagSet.StringVar(&opts.transport, "transport", "", "override the transport (http, mqtt, redis)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return &opts, nil
}

// loadConfig reads the file, applies flag overrides and validates.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.server != "" {
		cfg.Server = opts.server
	}
	if opts.transport != "" {
		cfg.Transport = opts.transport
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "edgerelay %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := service.NewLogger(stderr, cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newAgent(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	if err := a.listen(); err != nil {
		a.close()
		return err
	}
	err = a.run(ctx)
	logger.Info("edgerelay stopped")
	return err
}
