package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	forwardedForHeader   = "X-Forwarded-For"
	realIPHeader         = "X-Real-IP"
	cfConnectingIPHeader = "CF-Connecting-IP"

	// UnknownIdentity is returned when no proxy header carries a client address.
	UnknownIdentity = "unknown"

	// IdentityKey is the context key for the resolved client identifier.
	IdentityKey = "client_identity"
)

// IdentityFunc extracts the identifier used to scope guard decisions.
type IdentityFunc func(*gin.Context) string

// ResolveIdentity picks the client identifier from proxy headers in priority order:
// the first X-Forwarded-For hop, X-Real-IP, then CF-Connecting-IP.
// Values are trusted as-is; deployments must control their edge proxy.
func ResolveIdentity(h http.Header) string {
	if forwarded := h.Get(forwardedForHeader); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(h.Get(realIPHeader)); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get(cfConnectingIPHeader)); ip != "" {
		return ip
	}
	return UnknownIdentity
}

// HeaderIdentity resolves the identifier from the request headers.
func HeaderIdentity() IdentityFunc {
	return func(c *gin.Context) string {
		return ResolveIdentity(c.Request.Header)
	}
}

// GetIdentity returns the identifier resolved by Guard earlier in the chain.
func GetIdentity(c *gin.Context) string {
	if v, ok := c.Get(IdentityKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ResolveIdentity(c.Request.Header)
}
