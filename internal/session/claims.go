package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the client can read from a session token without the
// server's key. Nothing here is trusted for authorization.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c Claims) HasExpiry() bool { return !c.ExpiresAt.IsZero() }

func (c Claims) Expired(now time.Time) bool {
	return c.HasExpiry() && !now.Before(c.ExpiresAt)
}

var ErrOpaqueToken = errors.New("token is not a JWT")

// InspectToken decodes the registered claims of a JWT without verifying its
// signature. Tokens that are not JWTs return ErrOpaqueToken.
func InspectToken(token string) (Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, errors.Join(ErrOpaqueToken, err)
	}
	var c Claims
	c.Subject = rc.Subject
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}
