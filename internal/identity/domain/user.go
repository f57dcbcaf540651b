package domain

import "time"

// Auth providers a user identity can originate from.
const (
	ProviderLocal    = "local"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// Roles embedded in issued tokens.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is the local identity record. PasswordHash is empty for identities
// that only ever authenticated through a social provider.
type User struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	PasswordHash   string
	Role           string
	Provider       string
	ProviderUserID string
	PictureURL     string
	EmailVerified  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
