// Package middleware provides HTTP middleware for Solvio services
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderXRequestID = "X-Request-ID"

type contextKey string

const RequestIDKey contextKey = "request_id"

// GetRequestID returns the correlation ID stored on the gin context
func GetRequestID(c *gin.Context) string {
	id, _ := c.Get(string(RequestIDKey))
	s, _ := id.(string)
	return s
}

// GetRequestIDFromContext returns the correlation ID stored on a context.Context
func GetRequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(RequestIDKey).(string)
	return s
}

// ContextWithRequestID stores a correlation ID on a context.Context
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID carries the caller's X-Request-ID through the request context
// and response, minting a UUID when the caller sent none
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(string(RequestIDKey), id)
		c.Request = c.Request.WithContext(ContextWithRequestID(c.Request.Context(), id))
		c.Header(HeaderXRequestID, id)
		c.Next()
	}
}
