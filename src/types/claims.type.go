package types

import "github.com/golang-jwt/jwt/v4"

// Claims carried by the bearer token. Subject is the actor id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c Claims) Actor() Actor {
	return Actor{ID: c.Subject, Role: Role(c.Role)}
}
