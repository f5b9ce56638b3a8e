package middlewares

import (
	"homejobs/src/types"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SignToken issues an HS256 bearer token for actor. Tokens are normally
// minted by the identity provider; this backs local runs and tests.
func SignToken(secret []byte, actor types.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := types.Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
