package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, PATCH, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
	corsMaxAge  = "86400"
)

// CORS answers browsers calling from the registration site or the admin dashboard.
// allowedOrigins is "*" or a comma-separated list of origins; empty means "*".
func CORS(allowedOrigins string) gin.HandlerFunc {
	policy := parseCORSPolicy(allowedOrigins)
	return func(c *gin.Context) {
		if origin, ok := policy.allow(c.GetHeader("Origin")); ok {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			// Receipt PDFs are downloaded with a file name.
			h.Set("Access-Control-Expose-Headers", "Content-Disposition")
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
}

func parseCORSPolicy(s string) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{})}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(p.origins) == 0 {
		p.anyOrigin = true
	}
	return p
}

// allow returns the Access-Control-Allow-Origin value for origin.
func (p corsPolicy) allow(origin string) (string, bool) {
	if p.anyOrigin {
		return "*", true
	}
	if origin == "" {
		return "", false
	}
	if _, ok := p.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	return "", false
}
