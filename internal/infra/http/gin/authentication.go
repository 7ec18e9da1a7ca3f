package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"kisaanconnect/internal/app/services/auth"
	domainauth "kisaanconnect/internal/domain/auth"
	domainuser "kisaanconnect/internal/domain/user"
)

const principalContextKey = "kisaanconnect.principal"

type principal struct {
	ID    string
	Name  string
	Email string
	Roles []string
	Token string
}

func (p principal) HasRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range p.Roles {
		if strings.ToLower(r) == role {
			return true
		}
	}
	return false
}

func (p principal) IsAdmin() bool {
	return p.HasRole(string(domainuser.RoleAdmin))
}

// AuthMiddleware resolves the session from the cookie or a bearer token. It
// never rejects a request; handlers decide whether a principal is required.
type AuthMiddleware struct {
	Service    *auth.Service
	CookieName string
	Logger     *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := requestToken(c, m.CookieName)
	if token == "" || m.Service == nil {
		c.Next()
		return
	}
	resolved, err := m.Service.ResolveToken(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, domainauth.ErrSessionNotFound) && m.Logger != nil {
			m.Logger.Warn("session lookup failed", "error", err)
		}
		c.Next()
		return
	}
	user := resolved.User
	setPrincipal(c, principal{
		ID:    string(user.ID),
		Name:  user.Name,
		Email: user.Email,
		Roles: mapRoles(user.Roles),
		Token: token,
	})
	c.Next()
}

func mapRoles(roles []domainuser.Role) []string {
	result := make([]string, 0, len(roles))
	for _, r := range roles {
		result = append(result, string(r))
	}
	return result
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireAuth(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortWith(c, http.StatusUnauthorized, codeUnauthorized, "please log in first")
		return principal{}, false
	}
	return p, true
}

func requestToken(c *gin.Context, cookieName string) string {
	if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	token := strings.TrimSpace(header[7:])
	return token
}
