package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/grayblur/internal/domain"
	"github.com/dunamismax/grayblur/internal/ratelimit"
	"github.com/dunamismax/grayblur/internal/raster"
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string, cost int64) (ratelimit.Decision, error)
}

// withRateLimit charges one token per request.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.charge(w, r, 1) {
			next.ServeHTTP(w, r)
		}
	})
}

// charge draws cost tokens from the <user>:<route> bucket. It reports false
// after writing a 429. Limiter errors fail open.
func (s *Server) charge(w http.ResponseWriter, r *http.Request, cost int64) bool {
	if s.rateLimiter == nil {
		return true
	}

	route := routeLabel(r)
	subject := s.userID(r) + ":" + route

	decision, err := s.rateLimiter.Allow(r.Context(), subject, cost)
	if err != nil {
		s.logger.Warn("rate limiter check failed", "subject", subject, "err", err)
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := max(int(decision.RetryAfter.Round(time.Second).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// pipelineCost prices a job start before its source is decoded. Grayscale
// steps cost one token; blurring steps cost one token per DefaultBlurRadius
// of radius, rounded up.
func pipelineCost(steps []domain.PipelineStep) int64 {
	var cost int64
	for _, step := range steps {
		if strings.EqualFold(strings.TrimSpace(step.Action), domain.ActionGrayscale) {
			cost++
			continue
		}
		radius := int64(max(step.Radius(), 1))
		cost += (radius + raster.DefaultBlurRadius - 1) / raster.DefaultBlurRadius
	}
	return max(cost, 1)
}
