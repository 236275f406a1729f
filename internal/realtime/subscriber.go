package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/security"
	"github.com/nats-io/nats.go"
)

// EventApplier is the part of merge.Merger the subscriber needs.
type EventApplier interface {
	ApplyMessageEvent(ctx context.Context, ev model.MessageEvent) (*merge.EventResult, error)
}

// Subscriber feeds NATS message notifications into the merger.
type Subscriber struct {
	URL     string
	Subject string
	// Queue, when set, load-balances the subject across instances.
	Queue   string
	Applier EventApplier
}

// Run connects, subscribes and blocks until ctx is cancelled, then drains.
func (s *Subscriber) Run(ctx context.Context) error {
	nc, err := nats.Connect(s.URL,
		nats.Name("conversation-cache"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	handler := func(msg *nats.Msg) { s.Handle(ctx, msg.Data) }
	if s.Queue != "" {
		_, err = nc.QueueSubscribe(s.Subject, s.Queue, handler)
	} else {
		_, err = nc.Subscribe(s.Subject, handler)
	}
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe to %s: %w", s.Subject, err)
	}
	log.Info("Realtime subscriber started", "subject", s.Subject, "queue", s.Queue)

	<-ctx.Done()
	if err := nc.Drain(); err != nil {
		log.Warn("NATS drain failed", "err", err)
		nc.Close()
	}
	return nil
}

// Handle decodes and applies one payload. Failures are logged and counted,
// never returned, so one bad message cannot stop the subscription.
func (s *Subscriber) Handle(ctx context.Context, payload []byte) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		security.CountRealtimeEvent("malformed")
		log.Debug("Dropping malformed realtime event", "err", err)
		return
	}
	if _, err := s.Applier.ApplyMessageEvent(ctx, ev); err != nil {
		security.CountRealtimeEvent("failed")
		log.Error("Failed to apply realtime event", "pageId", ev.PageID, "clientId", ev.ClientID, "err", err)
	}
}
