package mongo

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// IndexWatcher subscribes to one owner's chat index via a change stream on
// the entries collection. Every commit touching the owner's entries triggers
// a re-read, so each notification carries the full current list in commit
// order for that owner. Requires a replica set, like the transactions.
type IndexWatcher struct {
	indexes *IndexRepository
	logger  *slog.Logger
}

func NewIndexWatcher(indexes *IndexRepository, logger *slog.Logger) *IndexWatcher {
	return &IndexWatcher{indexes: indexes, logger: logger}
}

func (w *IndexWatcher) Watch(ctx context.Context, owner domainuser.ID) (domainchat.Subscription, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"fullDocument.owner_id": string(owner)}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := w.indexes.entries.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	sub := &changeStreamSubscription{
		updates: make(chan []domainchat.Summary, 1),
		cancel:  cancel,
	}
	go w.pump(streamCtx, stream, owner, sub)
	return sub, nil
}

func (w *IndexWatcher) pump(ctx context.Context, stream *mongo.ChangeStream, owner domainuser.ID, sub *changeStreamSubscription) {
	defer close(sub.updates)
	defer stream.Close(context.Background())

	// Initial state, so subscribers render before the first change arrives.
	w.deliver(ctx, owner, sub)

	for stream.Next(ctx) {
		w.deliver(ctx, owner, sub)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil && w.logger != nil {
		w.logger.Error("chat index change stream failed", "owner_id", owner, "error", err)
	}
}

func (w *IndexWatcher) deliver(ctx context.Context, owner domainuser.ID, sub *changeStreamSubscription) {
	summaries, err := w.indexes.Entries(ctx, owner)
	if err != nil {
		if ctx.Err() == nil && w.logger != nil {
			w.logger.Warn("chat index re-read failed", "owner_id", owner, "error", err)
		}
		return
	}
	// Replace a pending stale snapshot rather than block the stream loop.
	select {
	case sub.updates <- summaries:
	default:
		select {
		case <-sub.updates:
		default:
		}
		sub.updates <- summaries
	}
}

type changeStreamSubscription struct {
	updates chan []domainchat.Summary
	cancel  context.CancelFunc
}

func (s *changeStreamSubscription) Updates() <-chan []domainchat.Summary { return s.updates }

func (s *changeStreamSubscription) Close() error {
	s.cancel()
	return nil
}
