package domain

import "time"

// RefreshToken models a stored refresh token record. Token doubles as the
// opaque credential and the primary key. Revoked is the only field that is
// ever mutated; records are otherwise deleted by logout verification or the
// expiry sweep.
type RefreshToken struct {
	Token      string
	OwnerEmail string
	DeviceInfo string
	ExpiresAt  time.Time
	Revoked    bool
	CreatedAt  time.Time
}

// Session is what a successful authentication returns: the signed access
// token, the opaque refresh token, and the identity they were issued for.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         User
}
