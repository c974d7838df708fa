package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qwerty-development/tableflow/internal/api"
	"github.com/qwerty-development/tableflow/internal/engine"
	"github.com/qwerty-development/tableflow/internal/events"
	"github.com/qwerty-development/tableflow/internal/obs"
)

// ServiceName identifies the process in traces.
const ServiceName = "tableflow"

// shutdownTimeout bounds the HTTP drain and span flush on exit.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the HTTP API",
		Long: `Start one engine worker per configured restaurant, consume booking change
events from RabbitMQ when TABLEFLOW_AMQP_URL is set, and serve the board,
conflict and transition API.

Restaurants come from TABLEFLOW_RESTAURANTS and the policy file; others
start on their first change event.

Example:
  TABLEFLOW_RESTAURANTS=r-1,r-2 tableflow serve --config policy.cue
  tableflow serve --addr :9090 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (default TABLEFLOW_HTTP_ADDR)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, opts.RootOptions, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("error closing stores", "error", closeErr)
		}
	}()

	shutdownTracer, err := obs.InitTracer(ctx, ServiceName, rt.env.OTLPEndpoint, rt.env.Environment)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	sinks := events.MultiSink{events.LogSink{Logger: logger}}
	engineOpts := []engine.Option{}
	var consumer *events.Consumer

	if url := rt.env.AMQPURL; url != "" {
		notifications, err := events.NewPublisher(url, events.DefaultNotificationExchange)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect notification publisher", err)
		}
		defer notifications.Close()
		sinks = append(sinks, events.NewAMQPSink(notifications))

		changes, err := events.NewPublisher(url, events.DefaultChangeExchange)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect change publisher", err)
		}
		defer changes.Close()
		engineOpts = append(engineOpts, engine.WithChanges(events.NewChangePublisher(changes)))

		consumer = events.NewConsumer(events.ConsumerConfig{URL: url}, logger)
		if err := consumer.Connect(); err != nil {
			return WrapExitError(ExitCommandError, "failed to connect change consumer", err)
		}
		defer consumer.Close()
	}

	eng := rt.engine(append(engineOpts, engine.WithSink(sinks))...)
	if err := eng.Resume(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to resume engine state", err)
	}

	addr := opts.Addr
	if addr == "" {
		addr = rt.env.HTTPAddr
	}
	srv := api.New(eng, logger)

	restaurants := rt.restaurants()
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx, restaurants...) }()

	errc := make(chan error, 2)
	if consumer != nil {
		go func() {
			if err := consumer.Run(ctx, eng.HandleChange); err != nil {
				errc <- fmt.Errorf("change consumer: %w", err)
			}
		}()
	}
	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info("tableflow serving",
		"event", "serve_start",
		"addr", addr,
		"restaurants", restaurants,
		"amqp", consumer != nil,
		"redis", rt.redis != nil,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", addr)

	var runErr error
	engineStopped := false
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	case runErr = <-engineDone:
		engineStopped = true
	}
	stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	// Workers must finish before the deferred store close.
	if !engineStopped {
		if err := <-engineDone; runErr == nil {
			runErr = err
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}
	logger.Info("tableflow stopped gracefully", "event", "serve_stop")
	return nil
}
