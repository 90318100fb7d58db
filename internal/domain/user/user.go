package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrUsernameRequired    = errors.New("user: username is required")
	ErrUsernameInvalid     = errors.New("user: username contains invalid characters")
	ErrEmailRequired       = errors.New("user: email is required")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrUsernameTaken       = errors.New("user: username already taken")
	ErrEmailAlreadyUsed    = errors.New("user: email already used")
	ErrNotFound            = errors.New("user: not found")
	ErrSelfBlock           = errors.New("user: cannot block yourself")
)

type ID string

// Profile is the directory entry for one account. Anonymous accounts carry a
// generated username and an empty email.
type Profile struct {
	ID           ID
	Username     string
	Email        string
	Avatar       string
	Blocked      []ID
	PasswordHash string
	Anonymous    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository is the user directory. Implementations must enforce username and
// email uniqueness at the storage layer, not by check-then-act.
type Repository interface {
	ByID(ctx context.Context, id ID) (*Profile, error)
	ByUsername(ctx context.Context, username string) (*Profile, error)
	ByEmail(ctx context.Context, email string) (*Profile, error)
	Save(ctx context.Context, profile *Profile) error
	SetAvatar(ctx context.Context, id ID, url string, now time.Time) error
	SetBlocked(ctx context.Context, id ID, blocked []ID, now time.Time) error
}

type CreateParams struct {
	ID           ID
	Username     string
	Email        string
	Avatar       string
	PasswordHash string
	Anonymous    bool
	CreatedAt    time.Time
}

func NewProfile(params CreateParams) (*Profile, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	username, err := NormalizeUsername(params.Username)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(params.Email)
	if !params.Anonymous {
		if email == "" {
			return nil, ErrEmailRequired
		}
		if strings.TrimSpace(params.PasswordHash) == "" {
			return nil, ErrPasswordHashMissing
		}
	}

	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	return &Profile{
		ID:           ID(id),
		Username:     username,
		Email:        email,
		Avatar:       strings.TrimSpace(params.Avatar),
		Blocked:      nil,
		PasswordHash: params.PasswordHash,
		Anonymous:    params.Anonymous,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasBlocked reports whether the profile owner has blocked the given user.
func (p *Profile) HasBlocked(id ID) bool {
	for _, blocked := range p.Blocked {
		if blocked == id {
			return true
		}
	}
	return false
}

// Block adds the target to the blocked set. Blocking an already blocked user
// is a no-op, mirroring set-union semantics.
func (p *Profile) Block(target ID, now time.Time) error {
	if target == p.ID {
		return ErrSelfBlock
	}
	if strings.TrimSpace(string(target)) == "" {
		return ErrIDRequired
	}
	if p.HasBlocked(target) {
		return nil
	}
	p.Blocked = append(p.Blocked, target)
	p.touch(now)
	return nil
}

// Unblock removes the target from the blocked set.
func (p *Profile) Unblock(target ID, now time.Time) {
	filtered := p.Blocked[:0]
	for _, blocked := range p.Blocked {
		if blocked != target {
			filtered = append(filtered, blocked)
		}
	}
	p.Blocked = filtered
	p.touch(now)
}

func (p *Profile) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	p.UpdatedAt = now.UTC()
}

// NormalizeUsername trims and lowercases a username and validates its shape.
// Lowercasing is what makes the storage-level uniqueness constraint
// case-insensitive.
func NormalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if username == "" {
		return "", ErrUsernameRequired
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return "", ErrUsernameInvalid
		}
	}
	return username, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
