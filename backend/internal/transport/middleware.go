package transport

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// hostMatcher decides whether a Host header names this server
type hostMatcher struct {
	any      bool
	exact    map[string]bool
	suffixes []string
}

func newHostMatcher(allowed []string) hostMatcher {
	m := hostMatcher{exact: map[string]bool{}}
	for _, h := range allowed {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "":
		case h == "*":
			m.any = true
		case strings.HasPrefix(h, "*."):
			m.suffixes = append(m.suffixes, h[1:])
		default:
			m.exact[h] = true
		}
	}
	return m
}

func (m hostMatcher) allows(hostport string) bool {
	if m.any {
		return true
	}
	host := strings.ToLower(hostport)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if m.exact[host] {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// trustedHosts rejects requests whose Host header is not in allowed. The port
// is ignored, "*" allows every host and "*.example.com" allows subdomains.
func trustedHosts(allowed []string) gin.HandlerFunc {
	matcher := newHostMatcher(allowed)
	return func(c *gin.Context) {
		if !matcher.allows(c.Request.Host) {
			c.String(http.StatusBadRequest, "Invalid host header")
			c.Abort()
			return
		}
		c.Next()
	}
}

var (
	corsMethods = []string{http.MethodGet, http.MethodPost}
	// exposed so browser clients can read the streamable HTTP session id
	corsExposeHeaders = "Mcp-Session-Id"
)

// cors answers preflight requests and tags responses for allowed origins.
// An empty origin list allows no cross-origin callers.
func cors(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := map[string]bool{}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = true
		}
	}
	originAllowed := func(origin string) bool {
		return allowAll || allowed[origin]
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Add("Vary", "Origin")

		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""
		if preflight {
			requested := c.GetHeader("Access-Control-Request-Method")
			if !originAllowed(origin) {
				c.String(http.StatusBadRequest, "Disallowed CORS origin")
				c.Abort()
				return
			}
			if !methodAllowed(requested) {
				c.String(http.StatusBadRequest, "Disallowed CORS method")
				c.Abort()
				return
			}
			header.Set("Access-Control-Allow-Origin", allowOriginValue(allowAll, origin))
			header.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
			if h := c.GetHeader("Access-Control-Request-Headers"); h != "" {
				header.Set("Access-Control-Allow-Headers", h)
			}
			header.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if originAllowed(origin) {
			header.Set("Access-Control-Allow-Origin", allowOriginValue(allowAll, origin))
			header.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}
		c.Next()
	}
}

func methodAllowed(method string) bool {
	for _, m := range corsMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func allowOriginValue(allowAll bool, origin string) string {
	if allowAll {
		return "*"
	}
	return origin
}
