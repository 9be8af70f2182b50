package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/hookqueue/common"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Authorizer decides whether the bearer of token may use permission.
type Authorizer interface {
	Authorize(ctx context.Context, token, permission string) error
}

// TokenAuthorizer grants a fixed set of permissions to one static token.
// An empty token denies every request.
type TokenAuthorizer struct {
	token       string
	permissions map[string]bool
}

// NewTokenAuthorizer grants permissions to token; with no permissions listed
// the token is granted everything.
func NewTokenAuthorizer(token string, permissions ...string) *TokenAuthorizer {
	var perms map[string]bool
	if len(permissions) > 0 {
		perms = make(map[string]bool, len(permissions))
		for _, p := range permissions {
			perms[p] = true
		}
	}
	return &TokenAuthorizer{token: token, permissions: perms}
}

func (a *TokenAuthorizer) Authorize(_ context.Context, token, permission string) error {
	if a.token == "" || token == "" {
		return ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return ErrUnauthenticated
	}
	if a.permissions != nil && !a.permissions[permission] {
		return ErrForbidden
	}
	return nil
}

// RequirePermission rejects the request unless the Authorization bearer token
// carries permission.
func RequirePermission(authz Authorizer, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))

		err := authz.Authorize(c.Request.Context(), token, permission)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, ErrForbidden):
			c.Error(common.Coded(http.StatusForbidden, "forbidden", "missing permission "+permission))
			c.Abort()
		default:
			c.Header("WWW-Authenticate", `Bearer realm="hookqueue"`)
			c.Error(common.Coded(http.StatusUnauthorized, "unauthenticated", "valid bearer token required"))
			c.Abort()
		}
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
