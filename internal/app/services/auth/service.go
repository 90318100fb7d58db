package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chatlink/internal/app/events"
	domainauth "chatlink/internal/domain/auth"
	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 8 characters")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenGenerator interface {
	NewToken() (string, error)
}

// Service owns account lifecycle: registration creates exactly one profile
// and one empty chat index per account, sign-in issues bearer sessions.
type Service struct {
	Users      domainuser.Repository
	Indexes    domainchat.IndexRepository
	Sessions   domainauth.SessionStore
	Passwords  PasswordHasher
	Tokens     TokenGenerator
	Events     events.Publisher
	SessionTTL time.Duration
	Logger     *slog.Logger
}

type RegisterParams struct {
	Username string
	Email    string
	Password string
}

type LoginParams struct {
	Email    string
	Password string
}

type AuthResult struct {
	Profile *domainuser.Profile
	Token   string
}

type ResolveResult struct {
	Profile *domainuser.Profile
	Session *domainauth.Session
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	username, err := domainuser.NormalizeUsername(params.Username)
	if err != nil {
		return nil, err
	}
	if err := s.validatePassword(params.Password); err != nil {
		return nil, err
	}
	// Early taken-check for a friendly error; the Save below is what actually
	// enforces uniqueness, so two racing registrations cannot both pass.
	if _, err := s.Users.ByUsername(ctx, username); err == nil {
		return nil, domainuser.ErrUsernameTaken
	} else if !errors.Is(err, domainuser.ErrNotFound) {
		return nil, err
	}
	hash, err := s.Passwords.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	profile, err := domainuser.NewProfile(domainuser.CreateParams{
		ID:           domainuser.ID(uuid.NewString()),
		Username:     username,
		Email:        params.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return s.provision(ctx, profile)
}

// Anonymous provisions a guest account with a generated username and no
// credentials. Guests get the same profile/index pair as registered users.
func (s *Service) Anonymous(ctx context.Context) (*AuthResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	profile, err := domainuser.NewProfile(domainuser.CreateParams{
		ID:        domainuser.ID(id),
		Username:  "guest-" + id[:8],
		Anonymous: true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return s.provision(ctx, profile)
}

func (s *Service) provision(ctx context.Context, profile *domainuser.Profile) (*AuthResult, error) {
	if err := s.Users.Save(ctx, profile); err != nil {
		return nil, err
	}
	if err := s.Indexes.Create(ctx, profile.ID); err != nil {
		if s.Logger != nil {
			s.Logger.Error("chat index provisioning failed", "user_id", profile.ID, "error", err)
		}
		return nil, err
	}
	token, err := s.issueSession(ctx, profile)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Name:       events.UserRegistered,
		Key:        string(profile.ID),
		OccurredAt: time.Now().UTC(),
		Payload:    map[string]any{"user_id": string(profile.ID), "username": profile.Username, "anonymous": profile.Anonymous},
	})
	if s.Logger != nil {
		s.Logger.Info("user registered", "user_id", profile.ID, "username", profile.Username, "anonymous", profile.Anonymous)
	}
	return &AuthResult{Profile: profile, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" {
		return nil, ErrInvalidCredentials
	}
	profile, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.Passwords.Compare(profile.PasswordHash, params.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, err := s.issueSession(ctx, profile)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user authenticated", "user_id", profile.ID)
	}
	return &AuthResult{Profile: profile, Token: token}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.Sessions.Delete(ctx, domainauth.Token(token))
}

func (s *Service) ResolveToken(ctx context.Context, token string) (*ResolveResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainauth.ErrTokenRequired
	}
	session, err := s.Sessions.Get(ctx, domainauth.Token(token))
	if err != nil {
		return nil, err
	}
	profile, err := s.Users.ByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			// The account is gone; every session it still holds is dead weight.
			_ = s.Sessions.DeleteByUser(ctx, session.UserID)
			return nil, domainauth.ErrSessionNotFound
		}
		return nil, err
	}
	return &ResolveResult{Profile: profile, Session: session}, nil
}

func (s *Service) issueSession(ctx context.Context, profile *domainuser.Profile) (string, error) {
	token, err := s.Tokens.NewToken()
	if err != nil {
		return "", err
	}
	session, err := domainauth.NewSession(domainauth.CreateSessionParams{
		Token:     domainauth.Token(token),
		UserID:    profile.ID,
		Anonymous: profile.Anonymous,
		TTL:       s.sessionTTL(),
		Now:       time.Now(),
	})
	if err != nil {
		return "", err
	}
	if err := s.Sessions.Save(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, event); err != nil && s.Logger != nil {
		s.Logger.Warn("event publish failed", "event", event.Name, "error", err)
	}
}

func (s *Service) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return 24 * time.Hour
}

func (s *Service) validatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Users == nil:
		return errors.New("auth: user repository required")
	case s.Indexes == nil:
		return errors.New("auth: chat index repository required")
	case s.Sessions == nil:
		return errors.New("auth: session store required")
	case s.Passwords == nil:
		return errors.New("auth: password hasher required")
	case s.Tokens == nil:
		return errors.New("auth: token generator required")
	default:
		return nil
	}
}
