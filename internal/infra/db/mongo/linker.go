package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domainchat "chatlink/internal/domain/chat"
)

// Linker applies a contact link as one multi-document transaction: thread
// creation plus both participants' index entries commit or abort together,
// so a failed link never leaves an orphaned thread or a one-sided chat.
// Requires a replica set (standalone mongod has no transactions).
type Linker struct {
	db      *mongo.Database
	indexes *IndexRepository
	threads *ThreadRepository
}

func NewLinker(db *mongo.Database, indexes *IndexRepository, threads *ThreadRepository) *Linker {
	return &Linker{db: db, indexes: indexes, threads: threads}
}

func (l *Linker) Link(ctx context.Context, params domainchat.LinkParams) (domainchat.ChatID, error) {
	session, err := l.db.Client().StartSession()
	if err != nil {
		return "", err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if err := l.ensureNotLinked(sc, params); err != nil {
			return nil, err
		}
		if err := l.threads.create(sc, params.Thread); err != nil {
			return nil, err
		}
		if err := l.indexes.Append(sc, params.TargetID, params.TargetEntry); err != nil {
			return nil, err
		}
		if err := l.indexes.Append(sc, params.InitiatorID, params.InitiatorEntry); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return params.Thread.ID, nil
}

// ensureNotLinked rejects a second chat between the same pair. The unique
// (owner_id, chat_id) index cannot catch this because a retry generates a
// fresh chat id.
func (l *Linker) ensureNotLinked(ctx context.Context, params domainchat.LinkParams) error {
	err := l.indexes.entries.FindOne(ctx, bson.M{
		"owner_id":    string(params.InitiatorID),
		"receiver_id": string(params.TargetID),
	}).Err()
	if err == nil {
		return domainchat.ErrAlreadyLinked
	}
	if err == mongo.ErrNoDocuments {
		return nil
	}
	return err
}
