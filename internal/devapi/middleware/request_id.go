package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the context key and the response header carrying the id
const RequestIDKey = "request_id"

// RequestIDHeader is echoed back when the client supplies one
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with an id
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
