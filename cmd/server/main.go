// Package main is the entry point for the virtualkemper API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/james-see/virtualkemper/pkg/api"
	"github.com/james-see/virtualkemper/pkg/config"
	"github.com/james-see/virtualkemper/pkg/kemper"
	"github.com/james-see/virtualkemper/pkg/metrics"
	"github.com/james-see/virtualkemper/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	device := flag.String("device", "profiler", "Built-in device")
	cfg := flag.String("config", "", "Device definition file (.yaml, .toml)")
	tick := flag.Duration("tick", runner.DefaultTick, "Host loop interval")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sink := metrics.NewSink(prometheus.NewRegistry(), nil)
	d, err := config.OpenDevice(*cfg, *device, kemper.WithLogger(logger), kemper.WithSink(sink))
	if err != nil {
		logger.Fatal("device", zap.Error(err))
	}
	r := runner.New(d, runner.WithTick(*tick), runner.WithObserver(sink.ObserveProtocol))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go r.Run(ctx)

	fmt.Printf("Starting virtualkemper API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(ctx, *port, r, api.WithMetrics(sink.Handler()), api.WithLogger(logger)); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
