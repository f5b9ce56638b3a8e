package middlewares

import (
	"homejobs/src/apperr"
	"homejobs/src/types"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const actorKey = "actor"

// AuthMiddleware resolves the bearer token into the calling actor. The
// token's subject is the actor id and its role claim the actor's role.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		bearerToken := ctx.Request.Header.Get("Authorization")
		reqToken, ok := strings.CutPrefix(bearerToken, "Bearer ")
		if !ok || reqToken == "" {
			unauthorized(ctx, "missing bearer token")
			return
		}
		claims := &types.Claims{}
		tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !tkn.Valid {
			if err != nil {
				log.Printf("[auth] token error: %s\n", err.Error())
			}
			unauthorized(ctx, "invalid token")
			return
		}
		actor := claims.Actor()
		if actor.ID == "" {
			unauthorized(ctx, "token has no subject")
			return
		}
		switch actor.Role {
		case types.ROLE_CUSTOMER, types.ROLE_CONTRACTOR, types.ROLE_ARBITRATOR:
		default:
			unauthorized(ctx, "unknown role")
			return
		}
		ctx.Set(actorKey, actor)
	}
}

func unauthorized(ctx *gin.Context, msg string) {
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": &apperr.Error{Kind: apperr.Forbidden, Message: msg}})
}

// Actor returns the actor AuthMiddleware stored on the request.
func Actor(ctx *gin.Context) types.Actor {
	if v, ok := ctx.Get(actorKey); ok {
		if actor, ok := v.(types.Actor); ok {
			return actor
		}
	}
	return types.Actor{}
}
