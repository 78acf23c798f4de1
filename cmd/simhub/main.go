// cmd/simhub/main.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// simhub runs either the connection hub or a simulation server attached
// to one:
//
//	simhub [flags] hub
//	simhub [flags] server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/simhub-atc/simhub/pkg/hub"
	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/sim"
	"github.com/simhub-atc/simhub/pkg/util"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	logLevel   = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir     = flag.String("logdir", "", "log file directory")

	// Hub flags.
	address = flag.String("address", "", "listen address, e.g. :8001 (hub)")

	// Server flags.
	hubURL     = flag.String("hub", "", "hub WebSocket URL, e.g. ws://localhost:8001 (server)")
	serverName = flag.String("name", "", "server name announced in the directory (server)")
)

// fileConfig is the on-disk layout: one file can configure both roles.
type fileConfig struct {
	Hub    hub.Config `yaml:"hub"`
	Server sim.Config `yaml:"server"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig accumulates everything wrong with the effective
// configuration so the user sees all of it in one run.
func validateConfig(mode string, cfg fileConfig, e *util.ErrorLogger) {
	if mode == "hub" {
		e.Push("hub")
		defer e.Pop()
		for _, f := range []string{cfg.Hub.BoundariesFile, cfg.Hub.OsmPbf} {
			if f == "" {
				continue
			}
			if _, err := os.Stat(f); err != nil {
				e.Error(err)
			}
		}
		if d := cfg.Hub.TopologiesDir; d != "" {
			if fi, err := os.Stat(d); err != nil {
				e.Error(err)
			} else if !fi.IsDir() {
				e.ErrorString("%s: not a directory", d)
			}
		}
		return
	}

	e.Push("server")
	defer e.Pop()
	u, err := url.Parse(cfg.Server.HubURL)
	if err != nil {
		e.Error(err)
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		e.ErrorString("%s: hub URL must use the ws or wss scheme", cfg.Server.HubURL)
	}
	for _, d := range cfg.Server.PluginDirs {
		if fi, err := os.Stat(d); err != nil {
			e.Error(err)
		} else if !fi.IsDir() {
			e.ErrorString("%s: not a directory", d)
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: simhub [flags] hub|server\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
	}
	mode := flag.Arg(0)
	if mode != "hub" && mode != "server" {
		usage()
	}

	// Deployment secrets and overrides come from the environment; a local
	// .env file is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, ".env: %v\n", err)
	}

	lg := log.New(mode == "hub", *logLevel, *logDir)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}

	// Flags win over the config file.
	if *address != "" {
		cfg.Hub.Address = *address
	}
	if *hubURL != "" {
		cfg.Server.HubURL = *hubURL
	}
	if *serverName != "" {
		cfg.Server.Name = *serverName
	}
	if cfg.Hub.Address == "" {
		cfg.Hub.Address = ":8001"
	}
	if cfg.Server.HubURL == "" {
		cfg.Server.HubURL = "ws://localhost:8001"
	}

	var e util.ErrorLogger
	validateConfig(mode, cfg, &e)
	if e.HaveErrors() {
		e.PrintErrors(lg)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "hub":
		h, err := hub.New(cfg.Hub, lg)
		if err != nil {
			lg.Errorf("%v", err)
			os.Exit(1)
		}
		err = h.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			lg.Errorf("hub: %v", err)
			os.Exit(1)
		}

	case "server":
		srv := sim.NewServer(cfg.Server, lg)
		err = srv.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			lg.Errorf("server: %v", err)
			os.Exit(1)
		}
	}
}
