package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	appErr "solcheck/pkg/errors"
	"solcheck/pkg/utils/contextkey"
	"solcheck/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	apiKeyQuery  = "api_key"
	apiKeyHeader = "X-API-Key"

	apiKeyMessage = "You need to provide correct api_key as GET param to access this API"
)

// APIKeyMiddleware accepts requests carrying one of keys, either as the
// api_key query parameter or the X-API-Key header. With no keys configured
// every request passes. The client id is a fingerprint of the matched key.
func APIKeyMiddleware(keys []string) gin.HandlerFunc {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		presented := c.Query(apiKeyQuery)
		if presented == "" {
			presented = c.GetHeader(apiKeyHeader)
		}
		for _, k := range allowed {
			if subtle.ConstantTimeCompare([]byte(presented), k) == 1 {
				setClientID(c, fingerprint(k))
				c.Next()
				return
			}
		}
		response.AbortWithError(c, appErr.UnauthorizedError(apiKeyMessage))
	}
}

func fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return "key-" + hex.EncodeToString(sum[:6])
}

func setClientID(c *gin.Context, id string) {
	c.Set(string(contextkey.ClientID), id)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.ClientID, id))
}

// ClientID returns the authenticated client id, falling back to the client IP.
func ClientID(c *gin.Context) string {
	if v, ok := c.Get(string(contextkey.ClientID)); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "ip-" + c.ClientIP()
}
