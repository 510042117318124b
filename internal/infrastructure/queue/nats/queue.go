package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/infrastructure/resilience"
)

// Queue carries stage events between pipeline processes. Subjects are
// "<prefix>.<stage>" so one worker subscription drains every stage.
type Queue struct {
	conn     *nats.Conn
	prefix   string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, prefix string) (*Queue, error) {
	return NewWithOptions(url, prefix, Options{})
}

func NewWithOptions(url, prefix string, options Options) (*Queue, error) {
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
	if prefix == "" {
		prefix = "pipeline"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docingest"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		prefix:   prefix,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Publish(ctx context.Context, stage string, payload domain.StagePayload) error {
	if payload.EmittedAt.IsZero() {
		payload.EmittedAt = time.Now().UTC()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stage payload: %w", err)
	}
	subject := q.prefix + "." + stage

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) Subscribe(ctx context.Context, handler func(ctx context.Context, stage string, payload domain.StagePayload) error) error {
	sub, err := q.conn.QueueSubscribe(q.prefix+".*", "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		stage := strings.TrimPrefix(msg.Subject, q.prefix+".")
		var payload domain.StagePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Printf("worker payload decode error on %s: %v", msg.Subject, err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, stage, payload); err != nil {
			log.Printf("worker handler error stage=%s doc=%s: %v", stage, payload.DocumentID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

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
