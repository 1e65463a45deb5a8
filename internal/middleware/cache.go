package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CacheControl marks GET responses as privately cacheable for maxAge. The
// catalogue changes at most once per term.
func CacheControl(maxAge time.Duration) gin.HandlerFunc {
	header := fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds()))
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Header("Cache-Control", header)
		}
		c.Next()
	}
}
