package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// BasicAuth gates a route group when a username is configured. The 401 body
// uses the backend's generic detail envelope so clients surface it verbatim.
// With no username configured the gate is open.
func BasicAuth(username, password string) gin.HandlerFunc {
	enabled := username != ""
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !ok || !userOK || !passOK {
			c.Header("WWW-Authenticate", `Basic realm="collageq"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "authentication required"})
			return
		}
		c.Next()
	}
}
