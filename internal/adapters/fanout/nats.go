package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/pkg/logger"
	"github.com/okian/clicker/pkg/metrics"
)

const (
	natsReconnectWait = 2 * time.Second
	natsMaxReconnects = -1
)

// Connect dials NATS with reconnect handlers that log through l.
func Connect(url string, l logger.Logger) (*nats.Conn, error) {
	ctx := context.Background()
	nc, err := nats.Connect(url,
		nats.Name("clicker"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn(ctx, "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info(ctx, "nats reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			l.Error(ctx, "nats error", logger.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// Subject returns the subject carrying updates for roundID.
func Subject(prefix, roundID string) (string, error) {
	if roundID == "" || strings.ContainsAny(roundID, ".*> \t") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRound, roundID)
	}
	return prefix + "." + roundID, nil
}

// RoundFromSubject extracts the round id from a subject under prefix.
func RoundFromSubject(prefix, subject string) (string, bool) {
	id, ok := strings.CutPrefix(subject, prefix+".")
	if !ok || id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}

// NATSPublisher publishes round updates to NATS so every instance's Bridge
// can relay them to its local subscribers.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger logger.Logger
}

// NewNATSPublisher creates a publisher on nc under subject prefix.
func NewNATSPublisher(nc *nats.Conn, prefix string, opts ...Option) *NATSPublisher {
	s := newSettings(opts, "fanout-nats")
	return &NATSPublisher{nc: nc, prefix: prefix, logger: s.logger}
}

// Publish encodes u as JSON and publishes it on the round's subject.
func (p *NATSPublisher) Publish(ctx context.Context, roundID string, u model.RoundUpdate) error {
	subject, err := Subject(p.prefix, roundID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		metrics.RecordErrorByComponent("fanout", "nats_publish")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Bridge relays updates from NATS into a local Hub.
type Bridge struct {
	nc     *nats.Conn
	prefix string
	hub    *Hub
	sub    *nats.Subscription
	logger logger.Logger
}

// NewBridge creates a bridge from nc into hub.
func NewBridge(nc *nats.Conn, prefix string, hub *Hub, opts ...Option) *Bridge {
	s := newSettings(opts, "fanout-bridge")
	return &Bridge{nc: nc, prefix: prefix, hub: hub, logger: s.logger}
}

// Start subscribes to every round subject under the prefix.
func (b *Bridge) Start(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		b.relay(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", b.prefix, err)
	}
	b.sub = sub
	b.logger.Info(ctx, "nats bridge started", logger.String("subject", b.prefix+".>"))
	return nil
}

func (b *Bridge) relay(ctx context.Context, msg *nats.Msg) {
	roundID, ok := RoundFromSubject(b.prefix, msg.Subject)
	if !ok {
		b.logger.Warn(ctx, "ignoring message on unexpected subject", logger.String("subject", msg.Subject))
		return
	}
	var u model.RoundUpdate
	if err := json.Unmarshal(msg.Data, &u); err != nil {
		metrics.RecordErrorByComponent("fanout", "decode")
		b.logger.Warn(ctx, "dropping undecodable update",
			logger.String("subject", msg.Subject),
			logger.Error(err),
		)
		return
	}
	if err := b.hub.Publish(ctx, roundID, u); err != nil {
		b.logger.Debug(ctx, "relay into hub failed", logger.Error(err))
		return
	}
	metrics.RecordBridgeForwarded()
}

// Stop unsubscribes. The connection is left to its owner.
func (b *Bridge) Stop() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}
