package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// TenantHeader carries the tenant key for callers without a tenant-scoped token.
const TenantHeader = "X-Tenant-ID"

const tenantContextKey = "tenant_id"

// Tenant resolves the tenant that scopes anomaly models and thresholds.
// A tenant in the token wins over the header.
func Tenant(defaultTenant string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(TenantHeader))
		if claims := Claims(c); claims != nil && claims.TenantID != "" {
			tenant = claims.TenantID
		}
		if tenant == "" {
			tenant = defaultTenant
		}
		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// TenantID returns the tenant resolved by Tenant.
func TenantID(c *gin.Context) string {
	if v, ok := c.Get(tenantContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
