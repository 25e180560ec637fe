// Package middleware carries the console's cross-cutting HTTP concerns:
// correlation IDs, request logging, and panic recovery.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader carries the caller-supplied correlation ID. The same ID
// is echoed on the response and threaded through to finalization attempt rows
// and outbox events, so one operator action can be traced end to end.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationIDKey is the gin context key the resolved ID is stored under.
const CorrelationIDKey = "correlation_id"

// CorrelationID resolves the request's correlation ID, minting one when the
// caller did not send any, and exposes it to handlers and the response
// envelope.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// GetCorrelationID returns the request's correlation ID, or "" when the
// middleware did not run.
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(CorrelationIDKey)
}
