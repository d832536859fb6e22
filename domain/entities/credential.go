package entities

import "time"

// Credential is a bearer access token with its lifetime.
// The same token doubles as the refresh token.
type Credential struct {
	Token    string        `json:"token"`
	TTL      time.Duration `json:"ttl"`
	IssuedAt time.Time     `json:"issued_at"`
}

// ExpiresAt returns the wall-clock expiry
func (c Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// Remaining returns the lifetime left at now, never negative
func (c Credential) Remaining(now time.Time) time.Duration {
	left := c.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// IsZero reports whether no token is held
func (c Credential) IsZero() bool {
	return c.Token == ""
}
