package indexer

import (
	"context"
	"log/slog"

	"document-archive/internal/broker"
)

// Publisher is the slice of the message channel the trigger needs.
type Publisher interface {
	Publish(ctx context.Context, stream string, msg any) error
}

// Trigger publishes reindex requests onto the reindex stream. Publishing
// happens after the caller's transaction has committed, so a search
// round-trip never holds a database transaction open.
type Trigger struct {
	pub    Publisher
	stream string
	logger *slog.Logger
}

func NewTrigger(pub Publisher, stream string, logger *slog.Logger) *Trigger {
	return &Trigger{
		pub:    pub,
		stream: stream,
		logger: logger.With("component", "reindex_trigger"),
	}
}

func (t *Trigger) TriggerReindex(ctx context.Context, documentID uint64) error {
	return t.pub.Publish(ctx, t.stream, broker.ReindexMessage{DocumentID: documentID})
}
