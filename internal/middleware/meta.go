package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-assign-api/pkg/response"
)

const (
	responseMetaKey = "response_meta"
	requestStartKey = "request_start"
)

// WithResponseMeta seeds a per-request metadata map and shares it with the
// request context so the cache layer can mark hits.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := response.Meta{}
		c.Set(responseMetaKey, meta)
		c.Set(requestStartKey, time.Now())
		c.Request = c.Request.WithContext(response.WithMeta(c.Request.Context(), meta))
		c.Next()
	}
}

// ExtractMeta returns the request metadata with processing time stamped at
// call time. Returns nil when WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil
	}
	meta, ok := value.(response.Meta)
	if !ok {
		return nil
	}
	if start, found := c.Get(requestStartKey); found {
		if t, isTime := start.(time.Time); isTime {
			meta["processing_time_ms"] = time.Since(t).Milliseconds()
		}
	}
	return meta
}
