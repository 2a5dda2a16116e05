package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/company-rag/internal/adapters/http"
	"github.com/kirillkom/company-rag/internal/bootstrap"
	"github.com/kirillkom/company-rag/internal/config"
	"github.com/kirillkom/company-rag/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if err := app.StartIndexSync(ctx); err != nil {
		log.Fatalf("lexical index rebuild error: %v", err)
	}

	router := httpadapter.NewRouter(cfg, app.IngestUC, app.QueryUC, app.IngestUC,
		httpadapter.WithMetrics(app.HTTPMetrics),
		httpadapter.WithLogger(logger),
		httpadapter.WithFeedback(app.FeedbackUC),
		httpadapter.WithAnalytics(app.AnalyticsUC),
		httpadapter.WithTenantSettings(app.TenantSettingsUC),
	).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.RequestTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.RequestTimeoutSec) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort, "lexical_backend", cfg.LexicalBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
