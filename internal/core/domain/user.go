package domain

import "time"

// User models an authenticated (or guest) actor in the system.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Permissions  int       `json:"permissions"` // global rank
	APIKey       string    `json:"-"`
	ActiveRoom   string    `json:"active_room,omitempty"` // room ID, empty when not in a room
	Guest        bool      `json:"guest,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GuestUser returns the identity used for callers whose identity could not be
// resolved. The network address stands in for the email.
func GuestUser(remoteAddr string) *User {
	return &User{
		Email:       remoteAddr,
		Permissions: GuestPermissions,
		Guest:       true,
	}
}

// Session is the authenticated context a connection or request carries.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
	RoomID      string // active room ID, empty when none
}

// Link is a named URL attached to a room.
type Link struct {
	Name string `json:"name" bson:"name"`
	URL  string `json:"url" bson:"url"`
}
