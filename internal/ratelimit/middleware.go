package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ClientIDKey is the gin context key holding the resolved client identifier.
const ClientIDKey = "cms_client_id"

// Middleware applies l to every request of the route group. keyFn resolves
// the client; onDecision, if set, observes every outcome.
func Middleware(l *Limiter, keyFn KeyFunc, onDecision func(Decision)) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = ClientKeyFunc("", false)
	}
	return func(c *gin.Context) {
		id := keyFn(c.Request)
		c.Set(ClientIDKey, id)

		d := l.Check(id)
		if onDecision != nil {
			onDecision(d)
		}
		d.WriteHeaders(c.Writer.Header())

		if !d.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests",
				"retryAfter": d.RetryAfterSeconds(),
			})
			return
		}
		c.Next()
	}
}

// ClientID returns the identifier stored by Middleware, resolving it with
// keyFn when the middleware did not run.
func ClientID(c *gin.Context, keyFn KeyFunc) string {
	if v, ok := c.Get(ClientIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	if keyFn == nil {
		keyFn = ClientKeyFunc("", false)
	}
	return keyFn(c.Request)
}
