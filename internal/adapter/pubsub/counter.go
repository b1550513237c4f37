package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/collabsheet/sheet-service/internal/domain/model"
)

// EditCounter subscribes to the edit feed and aggregates per-document
// counters for the /stats endpoint, logging each commit for auditing.
type EditCounter struct {
	logger *slog.Logger

	mu     sync.Mutex
	total  uint64
	undos  uint64
	perDoc map[string]uint64
}

// NewEditCounter returns an idle counter; Run attaches it to the feed.
func NewEditCounter(logger *slog.Logger) *EditCounter {
	return &EditCounter{
		logger: logger,
		perDoc: make(map[string]uint64),
	}
}

// Run consumes the edit feed until ctx is cancelled or the subscription
// channel closes.
func (c *EditCounter) Run(ctx context.Context, sub message.Subscriber) error {
	msgs, err := sub.Subscribe(ctx, EditTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			c.observe(msg)
			msg.Ack()
		}
	}()
	return nil
}

func (c *EditCounter) observe(msg *message.Message) {
	var ev model.EditEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		c.logger.Error("edit feed decode failure", "msg_id", msg.UUID, "err", err)
		return
	}

	c.mu.Lock()
	c.total++
	if ev.Origin == model.OriginUndo {
		c.undos++
	}
	c.perDoc[ev.Document]++
	c.mu.Unlock()

	c.logger.Debug("edit committed",
		"document", ev.Document,
		"cell", ev.Cell,
		"origin", ev.Origin,
	)
}

// Snapshot copies the counters.
func (c *EditCounter) Snapshot() model.FeedStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	perDoc := make(map[string]uint64, len(c.perDoc))
	for d, n := range c.perDoc {
		perDoc[d] = n
	}
	return model.FeedStats{
		TotalEdits:  c.total,
		TotalUndos:  c.undos,
		PerDocument: perDoc,
	}
}
