package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/infrastructure/resilience"
)

const workerQueueGroup = "workers"

// Each publish path has its own breaker, so a failing events subject does not
// block document uploads.
const (
	opPublishIngest     = "nats.publish.ingest"
	opPublishIndexEvent = "nats.publish.index_event"
)

var publishErrors = resilience.SentinelClassifier{
	Transient: []error{
		nats.ErrNoServers,
		nats.ErrTimeout,
		nats.ErrConnectionClosed,
		nats.ErrDisconnected,
		nats.ErrConnectionReconnecting,
	},
	Rejected: []error{
		nats.ErrMaxPayload,
		nats.ErrBadSubject,
	},
}

type Queue struct {
	conn          *nats.Conn
	ingestSubject string
	eventsSubject string
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	EventsSubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, ingestSubject string) (*Queue, error) {
	return NewWithOptions(url, ingestSubject, Options{})
}

func NewWithOptions(url, ingestSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eventsSubject := options.EventsSubject
	if eventsSubject == "" {
		eventsSubject = "fragments.indexed"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("company-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		ingestSubject: ingestSubject,
		eventsSubject: eventsSubject,
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	return q.publish(ctx, opPublishIngest, q.ingestSubject, []byte(documentID))
}

// PublishIndexEvent announces that a document's fragments changed.
func (q *Queue) PublishIndexEvent(ctx context.Context, event domain.IndexEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal index event: %w", err)
	}
	return q.publish(ctx, opPublishIndexEvent, q.eventsSubject, payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, publishErrors.Classify)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary(operation, err, publishErrors.Classify)
}

// SubscribeDocumentIngested load-balances ingestion jobs across workers and
// blocks until ctx is done.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.ingestSubject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		documentID := string(msg.Data)
		if err := handler(ctx, documentID); err != nil {
			q.logger.Error("worker handler error", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.serve(ctx, sub)
}

// SubscribeIndexEvents delivers every event to every subscriber, so each API
// replica keeps its own lexical index current.
func (q *Queue) SubscribeIndexEvents(ctx context.Context, handler func(context.Context, domain.IndexEvent) error) error {
	sub, err := q.conn.Subscribe(q.eventsSubject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		var event domain.IndexEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			q.logger.Warn("drop malformed index event", "error", err)
			return
		}
		if err := handler(ctx, event); err != nil {
			q.logger.Error("index event handler error", "document_id", event.DocumentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.serve(ctx, sub)
}

func (q *Queue) serve(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
