package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/nexosync/internal/metrics"
)

// Metrics records the count and latency of every request by its route pattern
func Metrics(m *metrics.Metrics) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveRequest(string(c.Method()), path, c.Response.StatusCode(), time.Since(start))
	}
}
