package domain

// SocialIdentity is the canonical shape a third-party login resolves to.
// It lives only for the duration of a social-login request: constructed from
// provider data, consumed to find or create a local user, then discarded.
type SocialIdentity struct {
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	PictureURL     string
	Provider       string
	EmailVerified  bool
}
