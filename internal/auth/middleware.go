package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
)

const principalContextKey = "principal"

// Middleware reads identity headers injected by the API gateway.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		role := Role(strings.ToUpper(strings.TrimSpace(c.GetHeader("X-User-Role"))))

		if userID == "" {
			abort(c, apperr.New(apperr.Unauthorized, "missing authenticated user"))
			return
		}
		if !role.Valid() {
			abort(c, apperr.Newf(apperr.Unauthorized, "unknown role %q", role))
			return
		}

		SetPrincipal(c, Principal{ID: userID, Role: role})
		c.Next()
	}
}

// RequireRoles rejects principals whose role is not listed.
func RequireRoles(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			abort(c, apperr.New(apperr.Unauthorized, "missing authenticated user"))
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		abort(c, apperr.New(apperr.Forbidden, "role not permitted"))
	}
}

func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(principalContextKey, p)
}

// PrincipalFrom extracts the principal stored by Middleware.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func abort(c *gin.Context, err *apperr.Error) {
	status, body := apperr.Response(err)
	c.AbortWithStatusJSON(status, body)
}
