package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/panwatch/panwatch/internal/auth"
	"github.com/panwatch/panwatch/internal/platform/observability"
)

const ctxUserKey = "user"

// abortError writes a FastAPI-compatible error body.
func abortError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:5173": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:5173": true,
	}
	if s.cfg.FrontendURL != "" {
		allowed[s.cfg.FrontendURL] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed[origin] {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")
			h.Set("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		observability.APIRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).
			Observe(elapsed.Seconds())

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}

// bearerUser resolves the Authorization header to a stored user, or
// nil when the header is absent or invalid.
func (s *Server) bearerUser(c *gin.Context) *auth.Info {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}

	username, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil
	}

	user, err := s.users.Get(username)
	if err != nil {
		return nil
	}

	return user
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := s.bearerUser(c)
		if user == nil {
			c.Header("WWW-Authenticate", "Bearer")
			abortError(c, http.StatusUnauthorized, "无效的认证凭证")

			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// optionalAuth attaches the user when a valid token is presented, and
// lets the request through either way. Handlers behind it decide
// whether guests are allowed.
func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := s.bearerUser(c); user != nil {
			c.Set(ctxUserKey, user)
		}

		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !strings.EqualFold(user.Role, auth.RoleAdmin) {
			abortError(c, http.StatusForbidden, "需要管理员权限")

			return
		}

		c.Next()
	}
}

func currentUser(c *gin.Context) *auth.Info {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}

	user, ok := v.(*auth.Info)
	if !ok {
		return nil
	}

	return user
}

// guestGate enforces the read-endpoint access rule: logged-in users
// pass, guests pass only when the public dashboard is enabled.
// It reports whether the caller is an anonymous guest.
func (s *Server) guestGate(c *gin.Context) (isGuest, ok bool) {
	if currentUser(c) != nil {
		return false, true
	}

	if s.publicDashboard.Load() {
		return true, true
	}

	c.Header("WWW-Authenticate", "Bearer")
	abortError(c, http.StatusUnauthorized, "需要登录才能访问")

	return false, false
}
