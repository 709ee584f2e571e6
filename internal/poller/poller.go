package poller

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/alferdousrana/Lifesheba/internal/cart"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const retryDelay = time.Second

// Carts resolves the cart of a session.
type Carts interface {
	Get(ctx context.Context, sessionID string) *cart.Store
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CheckoutCompletedEvent is the part of the checkout outbox message the cart cares about.
type CheckoutCompletedEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// Poller clears carts whose checkout completed elsewhere.
type Poller struct {
	carts  Carts
	reader MessageReader
	logger *zap.Logger
}

func NewPoller(carts Carts, logger *zap.Logger, topic, groupID string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(carts, reader, logger)
}

func NewPollerWithReader(carts Carts, reader MessageReader, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{carts: carts, reader: reader, logger: logger}
}

// Run consumes messages until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			p.logger.Warn("error reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		p.Handle(ctx, m.Value)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

// Handle clears the cart named by one outbox message. Malformed messages
// are logged and skipped.
func (p *Poller) Handle(ctx context.Context, value []byte) bool {
	var event CheckoutCompletedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		p.logger.Warn("error parsing message", zap.Error(err))
		return false
	}

	sessionID := event.SessionID
	if sessionID == "" {
		sessionID = event.UserID
	}
	if sessionID == "" {
		p.logger.Warn("missing session_id and user_id")
		return false
	}

	p.carts.Get(ctx, sessionID).Clear(ctx)
	p.logger.Info("cart cleared after checkout", zap.String("session_id", sessionID))
	return true
}
