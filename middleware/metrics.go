package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
)

// MetricsMiddleware records request count, latency and error counts to
// CloudWatch. It does nothing when the client is nil or disabled.
func MetricsMiddleware(metricsClient *aws_pkg.MetricsClient, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !metricsClient.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		// FullPath keeps route templates so :id values do not explode the dimension space.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    path,
			"Status":  statusClass(status),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTPRequests, dims)
			_ = metricsClient.RecordLatency(ctx, aws_pkg.MetricHTTPLatency, duration, dims)
			switch {
			case status >= 500:
				_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTPErrors, dims)
				_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTP5xx, dims)
			case status >= 400:
				_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTPErrors, dims)
				_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTP4xx, dims)
			}
		}()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
