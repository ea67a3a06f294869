package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement/service"
	"github.com/FACorreiaa/bankstatement2csv/internal/ops"
	"github.com/FACorreiaa/bankstatement2csv/pkg/bus"
)

const workerQueue = "statement-workers"

var errNotConnected = errors.New("not connected")

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued statement batches from NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), a)
		},
	}
}

func runWorker(ctx context.Context, a *app) error {
	cfg := a.cfg
	deps, err := InitDependencies(ctx, cfg, a.logger, Needs{Extraction: true, Jobs: true, Bus: true})
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	w := &worker{
		batches:      deps.StatementService,
		metrics:      deps.Metrics,
		pub:          deps.Bus,
		eventSubject: cfg.NATS.EventSubject,
		logger:       a.logger,
	}
	if err := deps.Bus.QueueSubscribe(cfg.NATS.RequestSubject, workerQueue, w.handler(ctx)); err != nil {
		return err
	}

	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	var srv *ops.Server
	if cfg.Observability.MetricsEnabled {
		srv = ops.NewServer(cfg.Observability.MetricsPort, deps.Registry, a.logger)
		srv.AddCheck("database", deps.DB.Ping)
		srv.AddCheck("nats", func(context.Context) error {
			if !deps.Bus.Connected() {
				return errNotConnected
			}
			return nil
		})
		go func() {
			errCh <- srv.Start()
		}()
	}

	a.logger.Info("worker started",
		slog.String("subject", cfg.NATS.RequestSubject),
		slog.String("queue", workerQueue),
	)

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down worker")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("ops server shutdown failed", slog.Any("error", err))
		}
	}
	return nil
}

type batchHandler interface {
	HandleRequest(ctx context.Context, req service.Request) (service.BatchResult, error)
}

type jobRecorder interface {
	JobsFinished(succeeded, failed int)
}

// BatchEvent is published after each processed request.
type BatchEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type worker struct {
	batches      batchHandler
	metrics      jobRecorder
	pub          bus.Publisher
	eventSubject string
	logger       *slog.Logger
	now          func() time.Time
}

func (w *worker) handler(ctx context.Context) func(subject string, data []byte) {
	return func(subject string, data []byte) {
		var req service.Request
		if err := json.Unmarshal(data, &req); err != nil {
			w.logger.Error("invalid statement request",
				slog.String("subject", subject),
				slog.Any("error", err),
			)
			return
		}
		w.process(ctx, req)
	}
}

func (w *worker) process(ctx context.Context, req service.Request) {
	event := BatchEvent{UserID: req.UserID, At: w.clock().UTC()}

	result, err := w.batches.HandleRequest(ctx, req)
	if err != nil {
		event.Error = err.Error()
		w.logger.Error("statement request failed",
			slog.String("user_id", req.UserID.String()),
			slog.Int("files", len(req.Files)),
			slog.Any("error", err),
		)
	}
	event.Succeeded, event.Failed = result.Succeeded(), result.Failed()
	w.metrics.JobsFinished(event.Succeeded, event.Failed)

	if w.pub == nil || w.eventSubject == "" {
		return
	}
	if err := w.pub.Publish(w.eventSubject+".batch", event); err != nil {
		w.logger.Warn("failed to publish batch event", slog.Any("error", err))
	}
}

func (w *worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}
