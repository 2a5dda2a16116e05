package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/company-rag/internal/bootstrap"
	"github.com/kirillkom/company-rag/internal/config"
	"github.com/kirillkom/company-rag/internal/observability/logging"
)

const processTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := app.WorkerMetrics
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		if doc, err := app.Documents.GetByID(processCtx, documentID); err == nil {
			workerMetrics.ObserveQueueLag(time.Since(doc.CreatedAt))
		}

		workerMetrics.StartDocument()
		start := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDocument(time.Since(start), err)
		return err
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
