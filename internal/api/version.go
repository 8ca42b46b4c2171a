// Package api provides the HTTP surface for the Solvio session core
package api

import (
	"github.com/gin-gonic/gin"
)

const (
	// HeaderAPIVersion is the response header that carries the API version
	HeaderAPIVersion = "X-API-Version"

	// APIVersion is the current API version
	APIVersion = "1.0"
)

// VersionMiddleware adds the X-API-Version header to every response
func VersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(HeaderAPIVersion, APIVersion)
		c.Next()
	}
}
