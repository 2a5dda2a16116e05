package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/company-rag/internal/adapters/mcp"
	"github.com/kirillkom/company-rag/internal/bootstrap"
	"github.com/kirillkom/company-rag/internal/config"
	"github.com/kirillkom/company-rag/internal/observability/logging"
)

const version = "1.0.0"

// Stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)
	log.SetOutput(os.Stderr)

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

	tools := mcpadapter.NewServer(app.QueryUC, cfg.MCPTenantID, logger)
	stdio := server.NewStdioServer(tools.MCPServer(version))
	stdio.SetErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))

	logger.Info("mcp server listening on stdio")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("mcp server error: %v", err)
	}
}
