// Package pubsub carries committed edits over an in-process watermill
// feed. The feed is observational: counters and audit logging subscribe
// to it, while the client broadcast path stays inside the session.
package pubsub

import (
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/collabsheet/sheet-service/internal/domain/model"
)

// EditTopic is the routing key of the edit feed.
const EditTopic = "sheet.edits"

// EditDispatcher publishes committed edits. It never blocks or fails the
// caller; a publish problem is logged and the edit proceeds.
type EditDispatcher interface {
	PublishEdit(ev model.EditEvent)
}

type editDispatcher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewEditDispatcher returns the feed-side implementation of EditDispatcher.
func NewEditDispatcher(pub message.Publisher, logger *slog.Logger) EditDispatcher {
	return &editDispatcher{publisher: pub, logger: logger}
}

func (d *editDispatcher) PublishEdit(ev model.EditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("edit feed marshal failure", "err", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := d.publisher.Publish(EditTopic, msg); err != nil {
		d.logger.Error("edit feed publish failure", "document", ev.Document, "err", err)
	}
}
