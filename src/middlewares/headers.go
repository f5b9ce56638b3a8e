package middlewares

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SecureHeaders(ctx *gin.Context) {
	ctx.Header("X-Frame-Options", "DENY")
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Header("Referrer-Policy", "strict-origin")
	ctx.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	ctx.Next()
}

func Maintenance(enabled func() bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if enabled() {
			log.Println("[maintenance] server is under maintenance")
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is under maintenance"})
			return
		}
		ctx.Next()
	}
}
