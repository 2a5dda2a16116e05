package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/company-rag/internal/config"
	"github.com/kirillkom/company-rag/internal/core/ports"
	"github.com/kirillkom/company-rag/internal/core/usecase"
	"github.com/kirillkom/company-rag/internal/infrastructure/cache/redis"
	"github.com/kirillkom/company-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/company-rag/internal/infrastructure/extractor/htmltext"
	"github.com/kirillkom/company-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/company-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/company-rag/internal/infrastructure/extractor/router"
	"github.com/kirillkom/company-rag/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/company-rag/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/company-rag/internal/infrastructure/lexical/bleveindex"
	"github.com/kirillkom/company-rag/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/company-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/company-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/company-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/company-rag/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/company-rag/internal/infrastructure/rerank/overlap"
	"github.com/kirillkom/company-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/company-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/company-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/company-rag/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Documents ports.DocumentRepository
	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC ports.DocumentProcessor
	QueryUC   *usecase.QueryUseCase
	IndexSync *usecase.LexicalIndexSync

	FeedbackUC       *usecase.FeedbackUseCase
	AnalyticsUC      *usecase.AnalyticsUseCase
	TenantSettingsUC *usecase.TenantSettingsUseCase

	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	closeFn []func()
}

// New connects every collaborator. Anything opened before a failure is closed
// again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	profile, err := config.LoadProfile(cfg.ProfileFile)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	app.Documents = documents
	fragments := postgres.NewFragmentRepository(db)
	conversations := postgres.NewConversationRepository(db)
	queryLog := postgres.NewQueryLogRepository(db)
	feedback := postgres.NewFeedbackRepository(db)
	tenantSettings := postgres.NewTenantSettingsRepository(db)
	app.FeedbackUC = usecase.NewFeedbackUseCase(feedback, logger)
	app.AnalyticsUC = usecase.NewAnalyticsUseCase(postgres.NewAnalyticsRepository(db), feedback)
	app.TenantSettingsUC = usecase.NewTenantSettingsUseCase(tenantSettings)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	app.HTTPMetrics = metrics.NewHTTPServerMetrics("api")
	app.WorkerMetrics = metrics.NewWorkerMetrics("worker")
	observer := metrics.NewRetrievalMetrics("api", app.HTTPMetrics.Registry())

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:     cfg.ResilienceRetryMaxAttempts,
		BreakerEnabled:       cfg.ResilienceBreakerEnabled,
		BreakerOpenTimeout:   time.Duration(cfg.ResilienceBreakerTimeoutMS) * time.Millisecond,
		Logger:               logger,
		OnBreakerStateChange: observer.ObserveBreakerState,
	})

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		EventsSubject:      cfg.NATSEventsSubject,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.onClose(queue.Close)
	app.Queue = queue

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithExecutor(executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection).WithExecutor(executor)

	lexical, err := newLexicalIndex(cfg.LexicalBackend, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := lexical.(interface{ Close() error }); ok {
		app.onClose(func() { _ = closer.Close() })
	}

	rewriter := usecase.NewQueryRewriter(generator, followUpCues(profile), logger)
	if cfg.RedisURL != "" {
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.onClose(func() { _ = client.Close() })
		rewriter = rewriter.WithCache(redis.NewRewriteCache(client, "rag:rewrite:", time.Duration(cfg.RewriteCacheTTLSeconds)*time.Second))
	}

	var citations ports.CitationRecorder
	if cfg.Neo4jURI != "" {
		driver, err := neo4j.Open(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		app.onClose(func() { _ = driver.Close(context.Background()) })
		citations = neo4j.NewCitationGraph(driver, cfg.Neo4jDatabase)
	}

	retriever := usecase.NewHybridRetriever(
		embedder,
		vectorDB,
		lexical,
		usecase.NewReranker(newCrossEncoder(cfg, executor)),
		usecase.RetrievalOptions{
			HybridEnabled:    cfg.HybridSearchEnabled,
			RerankThreshold:  cfg.RerankScoreThreshold,
			RerankPercentile: cfg.RerankDynamicPercentile,
			DefaultTopK:      cfg.RAGDefaultTopK,
		},
		observer,
		logger,
	)

	app.QueryUC = usecase.NewQueryUseCase(usecase.QueryDeps{
		Rewriter:      rewriter,
		Retriever:     retriever,
		Generator:     generator,
		Extractor:     usecase.NewCitationExtractor(profile.NoAnswerPhrases),
		Conversations: conversations,
		QueryLog:      queryLog,
		Citations:     citations,
		Tenants:       tenantSettings,
		Observer:      observer,
		Logger:        logger,
	}, usecase.QueryOptions{
		RewriteMaxTurns:   cfg.RewriteMaxTurns,
		HistoryMessages:   cfg.ConversationHistoryMessages,
		ContextCharBudget: cfg.ContextCharBudget,
		Weights:           usecase.FusionWeights{Vector: cfg.HybridVectorWeight, Lexical: cfg.HybridLexicalWeight},
		RRFK:              cfg.HybridRRFK,
	})

	app.IngestUC = usecase.NewIngestDocumentUseCase(documents, storage, queue, fragments, vectorDB, lexical, logger)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(
		documents,
		NewTextExtractor(storage),
		chunking.NewSemanticChunker(cfg.ChunkMaxSize, cfg.ChunkOverlap, cfg.ChunkMinSize),
		fragments,
		embedder,
		vectorDB,
		queue,
		logger,
	).WithObserver(app.WorkerMetrics)
	app.IndexSync = usecase.NewLexicalIndexSync(fragments, lexical, logger)

	return app, nil
}

// StartIndexSync subscribes to index events, then fills the lexical index from
// the fragment store. Events arriving during the rebuild are held and replayed
// after it, so nothing published meanwhile is lost.
func (a *App) StartIndexSync(ctx context.Context) error {
	return startIndexSync(ctx, a.Queue, a.IndexSync, a.Logger)
}

func startIndexSync(ctx context.Context, queue ports.MessageQueue, indexSync *usecase.LexicalIndexSync, logger *slog.Logger) error {
	go func() {
		err := queue.SubscribeIndexEvents(ctx, indexSync.Handle)
		if err != nil && ctx.Err() == nil {
			logger.Error("index event subscription stopped", "error", err)
		}
	}()
	return indexSync.Rebuild(ctx)
}

func (a *App) Close() {
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		a.closeFn[i]()
	}
	a.closeFn = nil
}

func (a *App) onClose(fn func()) {
	a.closeFn = append(a.closeFn, fn)
}

func newLexicalIndex(backend string, logger *slog.Logger) (ports.LexicalIndex, error) {
	switch backend {
	case "", "bm25":
		return bm25.New(logger), nil
	case "bleve":
		index, err := bleveindex.New(logger)
		if err != nil {
			return nil, fmt.Errorf("init bleve index: %w", err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unknown LEXICAL_BACKEND %q", backend)
	}
}

func newCrossEncoder(cfg config.Config, executor *resilience.Executor) ports.CrossEncoder {
	if cfg.RerankURL == "" {
		return overlap.New()
	}
	return crossencoder.New(cfg.RerankURL, cfg.RerankModel).WithExecutor(executor)
}

// NewTextExtractor routes documents to the PDF, spreadsheet and HTML extractors
// by extension or MIME type; anything else is read as UTF-8 text.
func NewTextExtractor(storage ports.ObjectStorage) ports.TextExtractor {
	return router.New(plaintext.NewExtractor(storage)).
		Register(pdf.NewExtractor(storage), []string{".pdf"}, []string{"application/pdf"}).
		Register(spreadsheet.NewExtractor(storage), []string{".xlsx", ".xlsm"}, []string{
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		}).
		Register(htmltext.NewExtractor(storage), []string{".html", ".htm"}, []string{"text/html", "application/xhtml+xml"})
}

func followUpCues(profile config.Profile) usecase.FollowUpCues {
	cues := usecase.DefaultFollowUpCues()
	if len(profile.FollowUpCues.Pronouns) > 0 {
		cues.Pronouns = profile.FollowUpCues.Pronouns
	}
	if len(profile.FollowUpCues.LeadingWords) > 0 {
		cues.LeadingWords = profile.FollowUpCues.LeadingWords
	}
	if len(profile.FollowUpCues.BackReference) > 0 {
		cues.BackReference = profile.FollowUpCues.BackReference
	}
	return cues
}
