package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// WithResponseMeta initialises response metadata storage on the request context.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Set("request_started_at", time.Now())
		c.Next()
	}
}

// ExtractMeta returns the metadata for the current response with the elapsed time filled in.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil
	}
	meta, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	if started, ok := c.Get("request_started_at"); ok {
		if ts, ok := started.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(ts).Milliseconds()
		}
	}
	return meta
}

// SetMeta attaches a key to the response metadata.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	if v, exists := c.Get(responseMetaKey); exists {
		if meta, ok := v.(map[string]interface{}); ok {
			meta[key] = value
		}
	}
}
