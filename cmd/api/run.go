package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/teslemetry2mqtt/internal/adapter/actor"
	"github.com/berfenger/teslemetry2mqtt/internal/config"
	"github.com/berfenger/teslemetry2mqtt/internal/core/actor"
	"github.com/berfenger/teslemetry2mqtt/internal/server"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/berfenger/teslemetry2mqtt/pkg/telemetry_stream"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge",
	RunE:  runBridge,
}

func gracefulShutdown(apiServer *http.Server, fatal <-chan error, done chan error) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cause error
	select {
	case <-ctx.Done():
		log.Println("shutting down gracefully, press Ctrl+C again to force")
	case cause = <-fatal:
		log.Printf("shutting down, setup failed: %v", cause)
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- cause
}

func runBridge(cmd *cobra.Command, args []string) error {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		return fmt.Errorf("config errors: %w", err)
	}
	safePrintConfig(*cfg)

	logger := newLogger(zap.NewAtomicLevelAt(cfg.LogLevel))
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	fatal := make(chan error, 1)
	onFatal := func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, fleetActorProvider(cfg, logger), mqttActorProvider(cfg, logger),
			streamActorProvider(cfg, logger), onFatal, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return err
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan error, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, fatal, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	cause := <-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()

	if cause != nil {
		logger.Sync()
		os.Exit(1)
	}
	return nil
}

func fleetClient(cfg *config.Config, logger *zap.Logger) *fleet_api.Client {
	opts := []fleet_api.Option{
		fleet_api.WithRetry(cfg.Teslemetry.RequestRetries, cfg.Teslemetry.RateLimitDelay()),
		fleet_api.WithLogger(logger),
	}
	if cfg.Teslemetry.BaseURL != "" {
		opts = append(opts, fleet_api.WithBaseURL(cfg.Teslemetry.BaseURL))
	}
	return fleet_api.NewClient(cfg.Teslemetry.AccessToken, opts...)
}

func fleetActorProvider(cfg *config.Config, logger *zap.Logger) actor.FleetActorProvider {
	api := fleetClient(cfg, logger)
	var stream *telemetry_stream.Client
	if cfg.Teslemetry.StreamEnable {
		stream = telemetry_stream.NewClient(cfg.Teslemetry.AccessToken, cfg.Teslemetry.StreamURL, logger)
	}
	fleetConfig := adactor.FleetActorConfig{
		RateLimitDelay: cfg.Teslemetry.RateLimitDelay(),
		RequestTimeout: cfg.Teslemetry.RequestTimeout(),
		CommandTimeout: cfg.Teslemetry.CommandTimeout(),
	}
	return func() *adactor.FleetActor {
		if stream == nil {
			return adactor.NewFleetActor(api, nil, fleetConfig, logger)
		}
		return adactor.NewFleetActor(api, stream, fleetConfig, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg.MQTT, eventStream, logger)
	}
}

func streamActorProvider(cfg *config.Config, logger *zap.Logger) actor.StreamActorProvider {
	if !cfg.Teslemetry.StreamEnable {
		return nil
	}
	stream := telemetry_stream.NewClient(cfg.Teslemetry.AccessToken, cfg.Teslemetry.StreamURL, logger)
	return func(vin string, eventStream *eventstream.EventStream) *adactor.StreamActor {
		return adactor.NewStreamActor(vin, stream, eventStream, adactor.DefaultStreamActorConfig(), logger)
	}
}
