// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/miniethnet"
)

const (
	listenHost        = "127.0.0.1"
	metricsPortOffset = 1000
)

type cmdArgs struct {
	flagset       *flag.FlagSet
	listenPort    uint16
	bootstrapPort uint16
}

func newCmdArgs() *cmdArgs {
	a := &cmdArgs{
		flagset: flag.NewFlagSet(os.Args[0], flag.ExitOnError),
	}
	a.flagset.Usage = func() {
		fmt.Fprintf(
			a.flagset.Output(),
			"Usage: %s <listen-port> [bootstrap-port]\n",
			a.flagset.Name(),
		)
	}
	return a
}

func (a *cmdArgs) parse(args []string) error {
	if err := a.flagset.Parse(args); err != nil {
		return err
	}
	switch a.flagset.NArg() {
	case 1, 2:
	default:
		return errors.New("expected a listen port and an optional bootstrap port")
	}
	var err error
	a.listenPort, err = parsePort(a.flagset.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid listen port: %w", err)
	}
	if a.flagset.NArg() == 2 {
		a.bootstrapPort, err = parsePort(a.flagset.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid bootstrap port: %w", err)
		}
	}
	return nil
}

func parsePort(value string) (uint16, error) {
	port, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, err
	}
	if port == 0 {
		return 0, errors.New("port must not be 0")
	}
	return uint16(port), nil
}

func main() {
	args := newCmdArgs()
	if err := args.parse(os.Args[1:]); err != nil {
		fmt.Printf("failed to parse command args: %s\n", err)
		args.flagset.Usage()
		os.Exit(1)
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	listenAddress := net.JoinHostPort(
		listenHost,
		strconv.Itoa(int(args.listenPort)),
	)
	opts := []miniethnet.NodeOptionFunc{
		miniethnet.WithListenAddress(listenAddress),
		miniethnet.WithLogger(logger),
		miniethnet.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		// The first node of a network produces headers
		miniethnet.WithLeader(args.bootstrapPort == 0),
	}
	if args.bootstrapPort != 0 {
		opts = append(
			opts,
			miniethnet.WithBootstrapAddress(
				net.JoinHostPort(listenHost, strconv.Itoa(int(args.bootstrapPort))),
			),
		)
	}
	node, err := miniethnet.NewNode(miniethnet.NewConfig(opts...))
	if err != nil {
		logger.Error(
			"failed to create node",
			"error", err,
		)
		os.Exit(1)
	}

	metricsServer := startMetricsServer(logger, int(args.listenPort)+metricsPortOffset)

	err = node.Run(ctx)
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
	if err != nil {
		logger.Error(
			"node failed",
			"error", err,
		)
		os.Exit(1)
	}
}

// startMetricsServer serves the default registry. Failures are only logged
func startMetricsServer(logger *slog.Logger, port int) *http.Server {
	if port > 65535 {
		logger.Warn(
			"metrics port out of range, not serving metrics",
			"port", port,
		)
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              net.JoinHostPort(listenHost, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info(
			"serving metrics",
			"addr", server.Addr,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(
				"metrics server failed",
				"error", err,
			)
		}
	}()
	return server
}
