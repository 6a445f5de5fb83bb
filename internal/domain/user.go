package domain

import (
	"time"
)

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"displayName"`
	CreatedAt   time.Time `json:"-"`
}

// PublicProfile is the part of a user exposed next to messages and in search.
type PublicProfile struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"displayName"`
}

func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
	}
}

// Name picks the label shown for a user: display name, then username.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}

const placeholderPrefixLen = 8

// PlaceholderUsername is assigned to users bootstrapped without a profile.
func PlaceholderUsername(userID string) string {
	short := userID
	if runes := []rune(userID); len(runes) > placeholderPrefixLen {
		short = string(runes[:placeholderPrefixLen])
	}
	return "user_" + short
}

// PlaceholderUsernames lists the usernames tried in order when bootstrapping
// a user. Later candidates only matter when a shorter one is already taken
// by a different user sharing the id prefix.
func PlaceholderUsernames(userID string) []string {
	first := PlaceholderUsername(userID)
	full := "user_" + userID
	if full == first {
		return []string{first}
	}
	return []string{first, full}
}
