package mongo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainuser "chatlink/internal/domain/user"
)

// UserRepository persists directory profiles. Username and email uniqueness
// is enforced by unique indexes, which is what closes the register race the
// application-level pre-check alone would leave open.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection("users")}
}

// Index names are pinned so duplicateUserError can match the server message
// against a known constraint instead of guessing from field substrings.
const (
	usernameIndexName = "username_unique"
	emailIndexName    = "email_unique"
)

// EnsureIndexes creates the uniqueness constraints. Email uniqueness is
// partial so anonymous profiles with no email do not collide.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(usernameIndexName),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndexName).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
		},
	})
	return err
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.Profile, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *UserRepository) ByUsername(ctx context.Context, username string) (*domainuser.Profile, error) {
	return r.findOne(ctx, bson.M{"username": strings.ToLower(strings.TrimSpace(username))})
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.Profile, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domainuser.Profile, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return doc.toProfile(), nil
}

func (r *UserRepository) Save(ctx context.Context, profile *domainuser.Profile) error {
	if profile == nil || strings.TrimSpace(string(profile.ID)) == "" {
		return domainuser.ErrIDRequired
	}
	doc := newUserDocument(profile)
	opts := options.Replace().SetUpsert(true)
	if _, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateUserError(err)
		}
		return err
	}
	return nil
}

func (r *UserRepository) SetAvatar(ctx context.Context, id domainuser.ID, url string, now time.Time) error {
	return r.setFields(ctx, id, bson.M{"avatar": url}, now)
}

func (r *UserRepository) SetBlocked(ctx context.Context, id domainuser.ID, blocked []domainuser.ID, now time.Time) error {
	ids := make([]string, 0, len(blocked))
	for _, b := range blocked {
		ids = append(ids, string(b))
	}
	return r.setFields(ctx, id, bson.M{"blocked": ids}, now)
}

func (r *UserRepository) setFields(ctx context.Context, id domainuser.ID, fields bson.M, now time.Time) error {
	if now.IsZero() {
		now = time.Now()
	}
	fields["updated_at"] = now.UTC().UnixMilli()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainuser.ErrNotFound
	}
	return nil
}

// duplicateUserError maps an E11000 failure to the constraint that fired.
// The server message quotes the full index name, so matching on it cannot be
// fooled by a username that merely contains "email".
func duplicateUserError(err error) error {
	switch {
	case strings.Contains(err.Error(), emailIndexName):
		return domainuser.ErrEmailAlreadyUsed
	case strings.Contains(err.Error(), usernameIndexName):
		return domainuser.ErrUsernameTaken
	default:
		return err
	}
}

type userDocument struct {
	ID           string   `bson:"_id"`
	Username     string   `bson:"username"`
	Email        string   `bson:"email,omitempty"`
	Avatar       string   `bson:"avatar,omitempty"`
	Blocked      []string `bson:"blocked"`
	PasswordHash string   `bson:"password_hash,omitempty"`
	Anonymous    bool     `bson:"anonymous,omitempty"`
	CreatedAt    int64    `bson:"created_at"`
	UpdatedAt    int64    `bson:"updated_at"`
}

func newUserDocument(p *domainuser.Profile) userDocument {
	blocked := make([]string, 0, len(p.Blocked))
	for _, id := range p.Blocked {
		blocked = append(blocked, string(id))
	}
	return userDocument{
		ID:           string(p.ID),
		Username:     p.Username,
		Email:        p.Email,
		Avatar:       p.Avatar,
		Blocked:      blocked,
		PasswordHash: p.PasswordHash,
		Anonymous:    p.Anonymous,
		CreatedAt:    p.CreatedAt.UnixMilli(),
		UpdatedAt:    p.UpdatedAt.UnixMilli(),
	}
}

func (d userDocument) toProfile() *domainuser.Profile {
	blocked := make([]domainuser.ID, 0, len(d.Blocked))
	for _, id := range d.Blocked {
		blocked = append(blocked, domainuser.ID(id))
	}
	return &domainuser.Profile{
		ID:           domainuser.ID(d.ID),
		Username:     d.Username,
		Email:        d.Email,
		Avatar:       d.Avatar,
		Blocked:      blocked,
		PasswordHash: d.PasswordHash,
		Anonymous:    d.Anonymous,
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
