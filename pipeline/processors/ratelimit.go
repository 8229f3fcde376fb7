package processors

import (
	"golang.org/x/time/rate"

	"github.com/ncldmg/zafxdp/packet"
	"github.com/ncldmg/zafxdp/pipeline"
)

// RateLimiter drops packets beyond a token-bucket budget. rate.Limiter is
// internally synchronized, so the stage is safe to share across workers.
type RateLimiter struct {
	limiter *rate.Limiter
}

var _ pipeline.Processor = (*RateLimiter)(nil)

// NewRateLimiter permits pps packets per second with the given burst.
func NewRateLimiter(pps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(pps), burst)}
}

// Process implements pipeline.Processor.
func (r *RateLimiter) Process(*packet.Packet) (pipeline.Result, error) {
	if !r.limiter.Allow() {
		return pipeline.Drop, nil
	}
	return pipeline.Pass, nil
}
