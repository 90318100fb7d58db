package dto

import (
	"time"

	domainuser "chatlink/internal/domain/user"
)

// UserProfile is the public view of a directory entry.
type UserProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Blocked   []string  `json:"blocked,omitempty"`
	Anonymous bool      `json:"anonymous,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthResponse carries the profile plus its bearer token.
type AuthResponse struct {
	User  UserProfile `json:"user"`
	Token string      `json:"token"`
}

func NewUserProfile(profile *domainuser.Profile) UserProfile {
	if profile == nil {
		return UserProfile{}
	}
	blocked := make([]string, 0, len(profile.Blocked))
	for _, id := range profile.Blocked {
		blocked = append(blocked, string(id))
	}
	return UserProfile{
		ID:        string(profile.ID),
		Username:  profile.Username,
		Email:     profile.Email,
		Avatar:    profile.Avatar,
		Blocked:   blocked,
		Anonymous: profile.Anonymous,
		CreatedAt: profile.CreatedAt,
		UpdatedAt: profile.UpdatedAt,
	}
}

func NewAuthResponse(profile *domainuser.Profile, token string) AuthResponse {
	return AuthResponse{User: NewUserProfile(profile), Token: token}
}

// PublicProfile hides email and block list, for peer entries in chat lists
// and search results.
func PublicProfile(profile *domainuser.Profile) UserProfile {
	view := NewUserProfile(profile)
	view.Email = ""
	view.Blocked = nil
	return view
}
