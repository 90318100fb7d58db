package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// ThreadRepository stores chat threads and their append-only message logs.
type ThreadRepository struct {
	threads  *mongo.Collection
	messages *mongo.Collection
}

func NewThreadRepository(db *mongo.Database) *ThreadRepository {
	return &ThreadRepository{
		threads:  db.Collection("chat_threads"),
		messages: db.Collection("chat_messages"),
	}
}

func (r *ThreadRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (r *ThreadRepository) ByID(ctx context.Context, id domainchat.ChatID) (*domainchat.Thread, error) {
	var doc threadDocument
	if err := r.threads.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainchat.ErrNotFound
		}
		return nil, err
	}
	return &domainchat.Thread{ID: domainchat.ChatID(doc.ID), CreatedAt: timestampToTime(doc.CreatedAt)}, nil
}

// create inserts the thread document; called inside the linker transaction.
func (r *ThreadRepository) create(ctx context.Context, thread domainchat.Thread) error {
	doc := threadDocument{ID: string(thread.ID), CreatedAt: thread.CreatedAt.UnixMilli()}
	if _, err := r.threads.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *ThreadRepository) Append(ctx context.Context, message domainchat.Message) error {
	if err := r.threads.FindOne(ctx, bson.M{"_id": string(message.ChatID)}).Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return domainchat.ErrNotFound
		}
		return err
	}
	_, err := r.messages.InsertOne(ctx, newMessageDocument(message))
	return err
}

func (r *ThreadRepository) Messages(ctx context.Context, id domainchat.ChatID, limit int) ([]domainchat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.messages.Find(ctx, bson.M{"chat_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	newestFirst := make([]domainchat.Message, 0)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, doc.toMessage())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	// Query sorts newest-first for the limit; callers get ascending order.
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, nil
}

type threadDocument struct {
	ID        string `bson:"_id"`
	CreatedAt int64  `bson:"created_at"`
}

type messageDocument struct {
	ID        string `bson:"_id"`
	ChatID    string `bson:"chat_id"`
	SenderID  string `bson:"sender_id"`
	Text      string `bson:"text"`
	CreatedAt int64  `bson:"created_at"`
}

func newMessageDocument(m domainchat.Message) messageDocument {
	return messageDocument{
		ID:        m.ID,
		ChatID:    string(m.ChatID),
		SenderID:  string(m.SenderID),
		Text:      m.Text,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}

func (d messageDocument) toMessage() domainchat.Message {
	return domainchat.Message{
		ID:        d.ID,
		ChatID:    domainchat.ChatID(d.ChatID),
		SenderID:  domainuser.ID(d.SenderID),
		Text:      d.Text,
		CreatedAt: timestampToTime(d.CreatedAt),
	}
}
