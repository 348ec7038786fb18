// Package middleware holds the gin middleware of the HTTP server.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

const (
	headerAPIKey = "X-API-Key"
	headerAuth   = "Authorization"
	bearerPrefix = "Bearer "
)

// APIKeyAuth rejects requests that carry no configured API key.
type APIKeyAuth struct {
	apiKeys [][]byte
}

// NewAPIKeyAuth creates the middleware. Empty keys are ignored; with no keys
// left every request is rejected.
func NewAPIKeyAuth(apiKeys []string) *APIKeyAuth {
	keys := make([][]byte, 0, len(apiKeys))
	for _, key := range apiKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, []byte(key))
		}
	}
	return &APIKeyAuth{apiKeys: keys}
}

// Handler checks X-API-Key first, then Authorization: Bearer.
func (a *APIKeyAuth) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.isValidAPIKey(extractAPIKey(c.Request)) {
			logger.Log.Warn("Unauthorized request",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func extractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get(headerAPIKey); apiKey != "" {
		return apiKey
	}
	if auth := r.Header.Get(headerAuth); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return ""
}

// isValidAPIKey compares against every key in constant time.
func (a *APIKeyAuth) isValidAPIKey(provided string) bool {
	if provided == "" {
		return false
	}
	valid := 0
	for _, key := range a.apiKeys {
		valid |= subtle.ConstantTimeCompare([]byte(provided), key)
	}
	return valid == 1
}
