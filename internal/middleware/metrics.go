package middleware

import (
	"time"

	"github.com/Santy1422/barcos-sub007/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(duration)
	}
}
