package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domainauth "chatlink/internal/domain/auth"
	domainuser "chatlink/internal/domain/user"
)

// UserRepository stores directory profiles in memory. Uniqueness of username
// and email is enforced under the same lock as the write, mirroring the
// unique indexes of the mongo implementation.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[domainuser.ID]*domainuser.Profile
	byUsername map[string]domainuser.ID
	byEmail    map[string]domainuser.ID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[domainuser.ID]*domainuser.Profile),
		byUsername: make(map[string]domainuser.ID),
		byEmail:    make(map[string]domainuser.ID),
	}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if profile, ok := r.byID[id]; ok {
		return cloneProfile(profile), nil
	}
	return nil, domainuser.ErrNotFound
}

func (r *UserRepository) ByUsername(ctx context.Context, username string) (*domainuser.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	return cloneProfile(r.byID[id]), nil
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	return cloneProfile(r.byID[id]), nil
}

func (r *UserRepository) Save(ctx context.Context, profile *domainuser.Profile) error {
	if profile == nil || strings.TrimSpace(string(profile.ID)) == "" {
		return domainuser.ErrIDRequired
	}
	usernameKey := strings.ToLower(strings.TrimSpace(profile.Username))
	if usernameKey == "" {
		return domainuser.ErrUsernameRequired
	}
	emailKey := strings.ToLower(strings.TrimSpace(profile.Email))

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byUsername[usernameKey]; ok && existing != profile.ID {
		return domainuser.ErrUsernameTaken
	}
	if emailKey != "" {
		if existing, ok := r.byEmail[emailKey]; ok && existing != profile.ID {
			return domainuser.ErrEmailAlreadyUsed
		}
	}
	if previous, ok := r.byID[profile.ID]; ok {
		delete(r.byUsername, strings.ToLower(previous.Username))
		if previous.Email != "" {
			delete(r.byEmail, strings.ToLower(previous.Email))
		}
	}
	r.byUsername[usernameKey] = profile.ID
	if emailKey != "" {
		r.byEmail[emailKey] = profile.ID
	}
	r.byID[profile.ID] = cloneProfile(profile)
	return nil
}

func (r *UserRepository) SetAvatar(ctx context.Context, id domainuser.ID, url string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.byID[id]
	if !ok {
		return domainuser.ErrNotFound
	}
	profile.Avatar = url
	profile.UpdatedAt = normalizeNow(now)
	return nil
}

func (r *UserRepository) SetBlocked(ctx context.Context, id domainuser.ID, blocked []domainuser.ID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.byID[id]
	if !ok {
		return domainuser.ErrNotFound
	}
	profile.Blocked = append([]domainuser.ID(nil), blocked...)
	profile.UpdatedAt = normalizeNow(now)
	return nil
}

func cloneProfile(p *domainuser.Profile) *domainuser.Profile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Blocked = append([]domainuser.ID(nil), p.Blocked...)
	return &clone
}

func normalizeNow(now time.Time) time.Time {
	if now.IsZero() {
		now = time.Now()
	}
	return now.UTC()
}

// SessionStore keeps bearer sessions in memory.
type SessionStore struct {
	mu        sync.RWMutex
	tokens    map[domainauth.Token]*domainauth.Session
	userIndex map[domainuser.ID]map[domainauth.Token]struct{}
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		tokens:    make(map[domainauth.Token]*domainauth.Session),
		userIndex: make(map[domainuser.ID]map[domainauth.Token]struct{}),
	}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil {
		return domainauth.ErrTokenRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[session.Token] = cloneSession(session)
	if _, ok := s.userIndex[session.UserID]; !ok {
		s.userIndex[session.UserID] = make(map[domainauth.Token]struct{})
	}
	s.userIndex[session.UserID][session.Token] = struct{}{}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token domainauth.Token) (*domainauth.Session, error) {
	s.mu.RLock()
	session, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	if session.Expired(time.Now()) {
		_ = s.Delete(ctx, token)
		return nil, domainauth.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) Delete(ctx context.Context, token domainauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.tokens[token]; ok {
		delete(s.tokens, token)
		if tokens, ok := s.userIndex[session.UserID]; ok {
			delete(tokens, token)
			if len(tokens) == 0 {
				delete(s.userIndex, session.UserID)
			}
		}
	}
	return nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token := range s.userIndex[userID] {
		delete(s.tokens, token)
	}
	delete(s.userIndex, userID)
	return nil
}

func cloneSession(s *domainauth.Session) *domainauth.Session {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
