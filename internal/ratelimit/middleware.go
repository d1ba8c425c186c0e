package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// TenantInfoFunc resolves a tenant's current risk level and saldo status so
// rules with risk_level or saldo_status filters can match. Implementations
// should be cheap; the middleware calls this on every non-exempt request.
type TenantInfoFunc func(ctx context.Context, tenantID string) (riskLevel, saldoStatus string)

// Middleware returns a Gin middleware that enforces rate limit rules.
// The tenant ID is read from the "tenant_id" context key (set by auth)
// or the X-Tenant-ID header as a fallback. info may be nil.
func (l *Limiter) Middleware(info TenantInfoFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &RequestContext{
			TenantID: tenantIDFrom(c),
			IP:       c.ClientIP(),
			Endpoint: c.Request.URL.Path,
		}
		if info != nil && req.TenantID != "" {
			req.RiskLevel, req.SaldoStatus = info(c.Request.Context(), req.TenantID)
		}

		decision := l.Check(c.Request.Context(), req)

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": decision.RetryAfterSeconds,
			})
			c.Abort()
			return
		}

		if decision.Action == ActionThrottle && decision.DelaySeconds > 0 {
			// Slow the request down instead of rejecting it outright.
			select {
			case <-time.After(time.Duration(decision.DelaySeconds) * time.Second):
			case <-c.Request.Context().Done():
				c.AbortWithStatus(http.StatusRequestTimeout)
				return
			}
		}

		c.Next()
	}
}

func tenantIDFrom(c *gin.Context) string {
	if v, ok := c.Get("tenant_id"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Tenant-ID")
}
