package bot

import (
	"time"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func GetFloodMiddleware(log *zap.Logger) []telegram.Middleware {
	waiter := floodwait.NewSimpleWaiter().WithMaxRetries(10)
	// ~30 req/s sustained, bursts up to 15: several streams share one
	// client identity's connection, so the per-connection rate limit needs
	// headroom beyond a single-stream budget.
	ratelimiter := ratelimit.New(rate.Every(time.Millisecond*33), 15)
	return []telegram.Middleware{
		waiter,
		ratelimiter,
	}
}
