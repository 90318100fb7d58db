package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	domainuser "chatlink/internal/domain/user"
)

// Uploader stores avatar bytes and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error)
}

// Service exposes the user directory: exact-username search, point reads and
// owner-only profile mutations (avatar, block list).
type Service struct {
	Users    domainuser.Repository
	Uploader Uploader
	Logger   *slog.Logger
}

// Search resolves a profile by exact username. An absent username is an
// expected condition and surfaces as user.ErrNotFound, never as a failure.
func (s *Service) Search(ctx context.Context, username string) (*domainuser.Profile, error) {
	normalized, err := domainuser.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	return s.Users.ByUsername(ctx, normalized)
}

// Resolve is a point-in-time profile read by identifier.
func (s *Service) Resolve(ctx context.Context, id domainuser.ID) (*domainuser.Profile, error) {
	return s.Users.ByID(ctx, id)
}

// UpdateAvatar streams the picture to the blob store and points the profile
// at the resulting URL.
func (s *Service) UpdateAvatar(ctx context.Context, owner domainuser.ID, name string, reader io.Reader, contentType string) (string, error) {
	if s.Uploader == nil {
		return "", errors.New("directory: uploader not configured")
	}
	now := time.Now().UTC()
	key := fmt.Sprintf("images/%s_%d", name, now.UnixMilli())
	url, err := s.Uploader.Upload(ctx, key, reader, contentType)
	if err != nil {
		return "", err
	}
	if err := s.Users.SetAvatar(ctx, owner, url, now); err != nil {
		return "", err
	}
	if s.Logger != nil {
		s.Logger.Info("avatar updated", "user_id", owner, "url", url)
	}
	return url, nil
}

// Block adds target to the owner's block list.
func (s *Service) Block(ctx context.Context, owner, target domainuser.ID) error {
	profile, err := s.Users.ByID(ctx, owner)
	if err != nil {
		return err
	}
	if _, err := s.Users.ByID(ctx, target); err != nil {
		return err
	}
	now := time.Now()
	if err := profile.Block(target, now); err != nil {
		return err
	}
	return s.Users.SetBlocked(ctx, owner, profile.Blocked, now)
}

// Unblock removes target from the owner's block list.
func (s *Service) Unblock(ctx context.Context, owner, target domainuser.ID) error {
	profile, err := s.Users.ByID(ctx, owner)
	if err != nil {
		return err
	}
	now := time.Now()
	profile.Unblock(target, now)
	return s.Users.SetBlocked(ctx, owner, profile.Blocked, now)
}
