package partition

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/metrics"
)

// Resolver maps a normalised request host to a partition.
type Resolver interface {
	Resolve(ctx context.Context, host string) (Partition, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, host string) (Partition, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, host string) (Partition, error) {
	return f(ctx, host)
}

// Middleware resolves the request host and binds the resulting partition to
// the request context before any handler runs.
func Middleware(r Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		host := NormalizeHost(c.Request.Host)
		p, err := r.Resolve(c.Request.Context(), host)
		if err != nil {
			switch {
			case errors.Is(err, ErrUnknownHost):
				metrics.PartitionResolutionsTotal.WithLabelValues("unknown").Inc()
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":   "tenant_not_found",
					"message": "no tenant is configured for this host",
				})
			case errors.Is(err, ErrInactive):
				metrics.PartitionResolutionsTotal.WithLabelValues("inactive").Inc()
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "tenant_inactive",
					"message": "this workspace has been deactivated",
				})
			default:
				metrics.PartitionResolutionsTotal.WithLabelValues("error").Inc()
				logging.L(c.Request.Context()).Error("partition resolution failed", "host", host, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "internal_error",
					"message": "failed to resolve tenant",
				})
			}
			return
		}

		if p.Public {
			metrics.PartitionResolutionsTotal.WithLabelValues("public").Inc()
		} else {
			metrics.PartitionResolutionsTotal.WithLabelValues("tenant").Inc()
		}

		ctx := With(c.Request.Context(), p)
		ctx = logging.With(ctx, "schema", p.Schema)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireTenant rejects requests bound to the public partition. Tenant-only
// routes answer 404 there, the same as an unrouted path.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := From(c.Request.Context())
		if !ok || p.Public {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "resource not found",
			})
			return
		}
		c.Next()
	}
}

// RequirePublic rejects requests bound to a tenant partition.
func RequirePublic() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := From(c.Request.Context())
		if !ok || !p.Public {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "resource not found",
			})
			return
		}
		c.Next()
	}
}
