// Package principal exposes the acting user that an upstream auth layer
// may have attached to the request context. Absence is normal.
package principal

import "github.com/gin-gonic/gin"

// ContextKey is the gin context key the auth middleware populates.
const ContextKey = "current_principal"

// Principal identifies the authenticated caller, best-effort.
type Principal struct {
	ID    string
	Email string
	Name  string
}

// Attach stores p on the context for downstream consumers.
func Attach(c *gin.Context, p *Principal) {
	if p != nil {
		c.Set(ContextKey, p)
	}
}

// FromContext returns the attached principal, or nil when the request
// is anonymous or the auth layer never ran.
func FromContext(c *gin.Context) *Principal {
	val, exists := c.Get(ContextKey)
	if !exists {
		return nil
	}
	p, ok := val.(*Principal)
	if !ok {
		return nil
	}
	return p
}
