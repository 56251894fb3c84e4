// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command nodpi-proxy runs a local HTTP CONNECT proxy that fragments the TLS
// ClientHello of connections to blocked hosts.
//
// Usage:
//
//	nodpi-proxy [-config nodpi.yaml] [-host 127.0.0.1] [-port 8881] [-blacklist blacklist.txt] [-logs] [-stats]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nodpi-proxy/nodpi/blocklist"
	"github.com/nodpi-proxy/nodpi/internal/config"
	"github.com/nodpi-proxy/nodpi/proxy"
	"github.com/nodpi-proxy/nodpi/stats"
	"golang.org/x/term"
)

const version = "1.0"

const shutdownTimeout = 5 * time.Second

// parseConfig builds the configuration from the defaults, the file named by -config
// and the flags in args, in increasing order of precedence.
func parseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	def := config.Default()
	configFlag := fs.String("config", "", "YAML config file. Flags that are set take precedence over it")
	hostFlag := fs.String("host", def.BindHost, "Address to listen on. Empty for all interfaces")
	portFlag := fs.Int("port", def.BindPort, "Port to listen on")
	blacklistFlag := fs.String("blacklist", def.Blacklist, "File with the blocked patterns, one per line")
	bufferFlag := fs.Int("buffer-size", def.BufferSize, fmt.Sprintf("Read size in bytes [%v, %v]", config.MinBufferSize, config.MaxBufferSize))
	debugFlag := fs.Bool("debug", def.Debug, "Track live tunnels and log their changes")
	logsFlag := fs.Bool("logs", def.ShowLogs, "Enable debug logs")
	statsFlag := fs.Bool("stats", def.ShowStats, "Log the counters of each tunnel when it closes")
	statsIntervalFlag := fs.Duration("stats-interval", def.StatsInterval, "Log the global counters at this interval. Zero disables it")
	handshakeFlag := fs.Duration("handshake-timeout", def.HandshakeTimeout, "Time to wait for the CONNECT request. Zero disables it")
	dialFlag := fs.Duration("dial-timeout", def.DialTimeout, "Time to wait for the connection to the target. Zero disables it")
	maxConnsFlag := fs.Int("max-conns", def.MaxConnections, "Maximum number of simultaneous connections. Zero means no limit")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := def
	if *configFlag != "" {
		var err error
		if cfg, err = config.Load(*configFlag); err != nil {
			return config.Config{}, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.BindHost = *hostFlag
		case "port":
			cfg.BindPort = *portFlag
		case "blacklist":
			cfg.Blacklist = *blacklistFlag
		case "buffer-size":
			cfg.BufferSize = *bufferFlag
		case "debug":
			cfg.Debug = *debugFlag
		case "logs":
			cfg.ShowLogs = *logsFlag
		case "stats":
			cfg.ShowStats = *statsFlag
		case "stats-interval":
			cfg.StatsInterval = *statsIntervalFlag
		case "handshake-timeout":
			cfg.HandshakeTimeout = *handshakeFlag
		case "dial-timeout":
			cfg.DialTimeout = *dialFlag
		case "max-conns":
			cfg.MaxConnections = *maxConnsFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(w *os.File, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		NoColor: !term.IsTerminal(int(w.Fd())),
		Level:   level,
	}))
}

func printBanner(logger *slog.Logger, addr string) {
	line := fmt.Sprintf("* nodpi v%v running on %v *", version, addr)
	frame := strings.Repeat("*", len(line))
	logger.Info(frame)
	logger.Info(line)
	logger.Info(frame)
}

// loadBlocklist checks that the blacklist file can be read. The server reloads it when
// it changes.
func loadBlocklist(path string) (*blocklist.FileSource, error) {
	source := blocklist.NewFileSource(path)
	patterns, err := source.Load()
	if err != nil {
		return nil, err
	}
	if patterns.Len() == 0 {
		slog.Warn("Blacklist is empty. No payload will be fragmented", "path", path)
	} else {
		slog.Info("Loaded blacklist", "path", path, "patterns", patterns.Len())
	}
	return source, nil
}

func run(ctx context.Context, cfg config.Config) error {
	source, err := loadBlocklist(cfg.Blacklist)
	if err != nil {
		return fmt.Errorf("could not load blacklist: %w", err)
	}

	server := &proxy.Server{
		Blocklist:        source,
		BufferSize:       cfg.BufferSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
		DialTimeout:      cfg.DialTimeout,
		MaxConnections:   cfg.MaxConnections,
		Debug:            cfg.Debug,
		ShowStats:        cfg.ShowStats,
		StatsInterval:    cfg.StatsInterval,
		Stats:            stats.NewGlobal(),
		Logger:           slog.Default(),
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("could not listen on address %v: %w", cfg.Addr(), err)
	}
	printBanner(slog.Default(), listener.Addr().String())

	served := make(chan error, 1)
	go func() {
		served <- server.Serve(listener)
	}()

	select {
	case err := <-served:
		return fmt.Errorf("proxy stopped: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "tunnels", len(server.ActiveTunnels()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	if serveErr := <-served; !errors.Is(serveErr, proxy.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	if cfg.ShowStats {
		slog.Info("Global stats", "global", server.Stats.Snapshot())
	}
	return err
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(newLogger(os.Stderr, cfg.ShowLogs))

	// Stop on interrupt, giving live tunnels shutdownTimeout to finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		slog.Error("Proxy failed", "error", err)
		stop()
		os.Exit(1)
	}
}
