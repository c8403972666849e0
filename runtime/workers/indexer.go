package workers

import (
	"chat-relay/domain/chat"
	"context"
	"log/slog"
)

type MessageIndex interface {
	Add(message chat.Message) error
}

// IndexerWorker feeds the full-text index with the messages stored by the gateway.
// An indexing failure is logged and the message skipped: search lags, chat does not.
type IndexerWorker struct {
	index    MessageIndex
	messages <-chan chat.Message
	log      *slog.Logger
}

func NewIndexerWorker(index MessageIndex, messages <-chan chat.Message, log *slog.Logger) *IndexerWorker {
	return &IndexerWorker{index: index, messages: messages, log: log}
}

func (w *IndexerWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping indexer")
			return ctx.Err()
		case message, ok := <-w.messages:
			if !ok {
				w.log.Debug("Index channel is closed")
				return nil
			}
			if err := w.index.Add(message); err != nil {
				w.log.Warn("Message not indexed", "message_id", message.ID, "error", err)
			}
		}
	}
}
