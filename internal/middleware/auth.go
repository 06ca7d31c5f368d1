// Package middleware provides Gin HTTP middleware for tenant resolution, authentication,
// authorization, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → TenantResolver → TenantGuard → Auth → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Tenant resolution runs before auth so that an unknown dealer answers 404 without revealing
// whether the credentials were valid. Auth populates the principal and scopes and checks the
// principal belongs to the resolved tenant; RBAC reads from that context. Audit logging runs
// after RBAC so only authorized mutations are recorded.
package middleware

import (
	"net/http"
	"strings"

	"github.com/dealer-crm/crm-backend/internal/auth"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/gin-gonic/gin"
)

// gin.Context keys set by AuthMiddleware.
const (
	UserIDKey          = "user_id"
	ScopesKey          = "scopes"
	PrincipalTenantKey = "principal_tenant_id"
)

// AuthMiddleware validates the bearer token and sets the principal in the context.
//
// On tenant routes the token's tenant must equal the resolved tenant; a principal holding the
// admin scope may act in any tenant.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		scopes := claims.Scopes
		if scopes == nil {
			scopes = []string{}
		}

		if tenantID := tenancy.IDFromContext(c.Request.Context()); tenantID != "" {
			if claims.TenantID != tenantID && !auth.HasScope(scopes, auth.ScopeAdmin) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "Not a member of this dealer",
				})
				return
			}
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(PrincipalTenantKey, claims.TenantID)
		c.Set(ScopesKey, scopes)
		c.Set("auth_method", "jwt")

		c.Next()
	}
}
