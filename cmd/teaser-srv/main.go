package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"teaser/internal/buildinfo"
	"teaser/internal/classify"
	"teaser/internal/collect"
	teaser "teaser/internal/config"
	"teaser/internal/logging"
	"teaser/internal/server"
	"teaser/internal/setup"
	"teaser/internal/shutdown"
	"teaser/internal/snapshot"
	"teaser/internal/telemetry"
)

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(
		os.Stdout,
		"%s: %s, %s\n",
		buildinfo.Info.Name(),
		buildinfo.Info.Time(),
		buildinfo.Info.Tag(),
	)

	ctx, done := shutdown.New()
	logger := logging.FromContext(ctx)
	if err := run(ctx, done); err != nil {
		logger.Fatal(err)
	}

	defer done()
}

func run(ctx context.Context, cancel func()) error {
	config := teaser.Config{}
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}

	shutdownCh := make(chan error, 2)
	notifier, err := env.ProvideNotifier()(shutdownCh)
	if err != nil {
		return fmt.Errorf("notifier provider function error: %w", err)
	}
	streamer, err := env.ProvideStream()(notifier, shutdownCh)
	if err != nil {
		return fmt.Errorf("stream provider function error: %w", err)
	}

	if err := streamer.Run(ctx); err != nil {
		return fmt.Errorf("stream.Run: %w", err)
	}

	srv, err := server.New(config.SrvAddr)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	mux := http.NewServeMux()

	classifyHandler, err := classify.NewHandler(&config.Classify, env.ProvideClassifier())
	if err != nil {
		return fmt.Errorf("classify.NewHandler: %w", err)
	}
	collectHandler, err := collect.NewHandler(&config.Collect, streamer)
	if err != nil {
		return fmt.Errorf("collect.NewHandler: %w", err)
	}
	snapshotHandler, err := snapshot.NewHandler(&config.Snapshot, streamer)
	if err != nil {
		return fmt.Errorf("snapshot.NewHandler: %w", err)
	}
	metricsHandler, err := telemetry.Register()
	if err != nil {
		return fmt.Errorf("telemetry.Register: %w", err)
	}

	mux.Handle("/classify", classifyHandler)
	mux.Handle("/collect", collectHandler)
	mux.Handle("/state", snapshotHandler)
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/health", server.HandleHealth(ctx))

	go func() {
		if err := srv.ServeHTTPHandler(ctx, mux); err != nil {
			cancel()
		}
	}()

	grpcSrv, err := server.New(config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	go func() {
		s := grpc.NewServer()
		healthpb.RegisterHealthServer(s, health.NewServer())
		if err := grpcSrv.ServeGRPC(ctx, s); err != nil {
			cancel()
		}
	}()

	if config.ProfilerSrv != "" {
		go func() {
			if err := http.ListenAndServe(config.ProfilerSrv, nil); err != nil {
				cancel()
			}
		}()
	}

	return <-shutdownCh
}
