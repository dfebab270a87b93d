package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/debugbridge/internal/domain/auth"
)

// TokenQueryParam carries the token on WebSocket upgrades from clients
// that cannot set request headers
const TokenQueryParam = "token"

// Auth rejects requests without the bridge token. Paths in public skip
// the check.
func Auth(gate *auth.Gate, public ...string) gin.HandlerFunc {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := open[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		token := c.GetHeader(auth.HeaderName)
		if token == "" && isUpgrade(c.Request) {
			token = c.Query(TokenQueryParam)
		}

		if err := gate.Check(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "unauthorized",
				"detail": "unauthorized",
			})
			return
		}
		c.Next()
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
