package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// IndexRepository stores chat indexes as a keyed sub-collection: one
// document per (owner, chat), so every mutation is a point update and the
// whole-array rewrite race of array-valued designs cannot occur. A separate
// owners collection marks which users have an index at all, which keeps
// "empty index" distinct from "no index".
type IndexRepository struct {
	owners  *mongo.Collection
	entries *mongo.Collection
}

func NewIndexRepository(db *mongo.Database) *IndexRepository {
	return &IndexRepository{
		owners:  db.Collection("chat_index_owners"),
		entries: db.Collection("chat_index_entries"),
	}
}

func (r *IndexRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "chat_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "receiver_id", Value: 1}},
		},
	})
	return err
}

func (r *IndexRepository) Create(ctx context.Context, owner domainuser.ID) error {
	doc := bson.M{"_id": string(owner), "created_at": time.Now().UTC().UnixMilli()}
	if _, err := r.owners.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrIndexExists
		}
		return err
	}
	return nil
}

func (r *IndexRepository) Entries(ctx context.Context, owner domainuser.ID) ([]domainchat.Summary, error) {
	if err := r.ensureOwner(ctx, owner); err != nil {
		return nil, err
	}
	cursor, err := r.entries.Find(ctx, bson.M{"owner_id": string(owner)})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summaries := make([]domainchat.Summary, 0)
	for cursor.Next(ctx) {
		var doc entryDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		summaries = append(summaries, doc.toSummary())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *IndexRepository) Append(ctx context.Context, owner domainuser.ID, summary domainchat.Summary) error {
	if err := r.ensureOwner(ctx, owner); err != nil {
		return err
	}
	if _, err := r.entries.InsertOne(ctx, newEntryDocument(owner, summary)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *IndexRepository) MarkSeen(ctx context.Context, owner domainuser.ID, chatID domainchat.ChatID, seen bool) error {
	return r.updateEntry(ctx, owner, chatID, bson.M{"is_seen": seen})
}

func (r *IndexRepository) SetLastMessage(ctx context.Context, owner domainuser.ID, chatID domainchat.ChatID, snippet string, at time.Time, seen bool) error {
	return r.updateEntry(ctx, owner, chatID, bson.M{
		"last_message": snippet,
		"updated_at":   at.UTC().UnixMilli(),
		"is_seen":      seen,
	})
}

func (r *IndexRepository) updateEntry(ctx context.Context, owner domainuser.ID, chatID domainchat.ChatID, fields bson.M) error {
	res, err := r.entries.UpdateOne(ctx,
		bson.M{"owner_id": string(owner), "chat_id": string(chatID)},
		bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrNotFound
	}
	return nil
}

func (r *IndexRepository) ensureOwner(ctx context.Context, owner domainuser.ID) error {
	err := r.owners.FindOne(ctx, bson.M{"_id": string(owner)}).Err()
	if err == mongo.ErrNoDocuments {
		return domainchat.ErrNotFound
	}
	return err
}

type entryDocument struct {
	ID          string `bson:"_id,omitempty"`
	OwnerID     string `bson:"owner_id"`
	ChatID      string `bson:"chat_id"`
	ReceiverID  string `bson:"receiver_id"`
	LastMessage string `bson:"last_message"`
	UpdatedAt   int64  `bson:"updated_at"`
	IsSeen      bool   `bson:"is_seen"`
}

func newEntryDocument(owner domainuser.ID, s domainchat.Summary) entryDocument {
	return entryDocument{
		ID:          fmt.Sprintf("%s:%s", owner, s.ChatID),
		OwnerID:     string(owner),
		ChatID:      string(s.ChatID),
		ReceiverID:  string(s.ReceiverID),
		LastMessage: s.LastMessage,
		UpdatedAt:   s.UpdatedAt.UnixMilli(),
		IsSeen:      s.IsSeen,
	}
}

func (d entryDocument) toSummary() domainchat.Summary {
	return domainchat.Summary{
		ChatID:      domainchat.ChatID(d.ChatID),
		ReceiverID:  domainuser.ID(d.ReceiverID),
		LastMessage: d.LastMessage,
		UpdatedAt:   timestampToTime(d.UpdatedAt),
		IsSeen:      d.IsSeen,
	}
}
