// Package middleware contains Gin middleware functions.
// Middleware in Gin is a handler that runs before (or after) your route handler.
// It calls c.Next() to proceed or c.Abort() to stop the chain.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextKeyAPIKey is where the authenticated key is stored on gin.Context.
const ContextKeyAPIKey = "api_key"

// abort writes the same {"error", "message"} body the handlers use.
func abort(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": message})
}

func keySet(keys []string) map[string]struct{} {
	// map[string]struct{} is Go's set: struct{} takes zero bytes.
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// requestKey reads the key from the X-API-Key header, falling back to the
// api_key form or query value so plain HTML forms can authenticate.
func requestKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if key := c.Query("api_key"); key != "" {
		return key
	}
	if c.ContentType() == "application/x-www-form-urlencoded" {
		return c.PostForm("api_key")
	}
	return ""
}

// APIKeyAuth returns middleware that validates API keys. With no keys
// configured the API is open, which is how the service runs locally.
func APIKeyAuth(validKeys []string) gin.HandlerFunc {
	keys := keySet(validKeys)

	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}

		key := requestKey(c)
		if key == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "missing API key")
			return
		}
		if _, ok := keys[key]; !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}

		// Downstream middleware (rate limiting) reads it back.
		c.Set(ContextKeyAPIKey, key)
		c.Next()
	}
}

// AdminKeyAuth returns middleware that validates admin API keys. Unlike
// APIKeyAuth it fails closed: with no admin keys, admin routes are disabled.
func AdminKeyAuth(adminKeys []string) gin.HandlerFunc {
	keys := keySet(adminKeys)

	return func(c *gin.Context) {
		key := requestKey(c)
		if key == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "missing admin API key")
			return
		}
		if _, ok := keys[key]; !ok {
			abort(c, http.StatusForbidden, "forbidden", "invalid admin API key")
			return
		}

		c.Set(ContextKeyAPIKey, key)
		c.Next()
	}
}
