package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mulgadc/ec2-scheduler/scheduler/handler"
	"github.com/nats-io/nats.go"
)

// Subscriber serves invocations arriving on a NATS subject. Each request is
// answered with the JSON-encoded ActionResponse envelope.
type Subscriber struct {
	nc      *nats.Conn
	handler *handler.Handler
	subject string
	queue   string

	mu  sync.Mutex
	sub *nats.Subscription
}

// New creates a Subscriber. An empty queue subscribes without a queue group.
func New(nc *nats.Conn, h *handler.Handler, subject, queue string) *Subscriber {
	return &Subscriber{
		nc:      nc,
		handler: h,
		subject: subject,
		queue:   queue,
	}
}

// Start registers the subscription.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return fmt.Errorf("already subscribed to %s", s.subject)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if s.queue != "" {
		sub, err = s.nc.QueueSubscribe(s.subject, s.queue, s.handleInvoke)
	} else {
		sub, err = s.nc.Subscribe(s.subject, s.handleInvoke)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}

	s.sub = sub
	slog.Info("Subscribed to invocation topic", "subject", s.subject, "queue", s.queue)
	return nil
}

// Close drains the subscription so in-flight invocations still get a reply.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return nil
	}
	err := s.sub.Drain()
	s.sub = nil
	return err
}

func (s *Subscriber) handleInvoke(msg *nats.Msg) {
	requestID := msg.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := slog.Default().With("request_id", requestID, "subject", msg.Subject)

	resp := s.handler.HandleEvent(handler.WithLogger(context.Background(), logger), msg.Data)

	if msg.Reply == "" {
		logger.Debug("Invocation has no reply subject, dropping response", "statusCode", resp.StatusCode)
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("Failed to marshal response", "err", err)
		return
	}

	if err := msg.Respond(data); err != nil {
		logger.Error("Failed to respond to invocation", "err", err)
	}
}
