package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit observations.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shipstation_rate_limit_remaining",
		Help: "Calls remaining in the current upstream rate limit window",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipstation_rate_limit_waits_total",
		Help: "Total number of self-imposed waits for rate limit resets",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shipstation_rate_limit_wait_seconds",
		Help:    "Duration of self-imposed rate limit waits",
		Buckets: []float64{1, 5, 15, 30, 61, 120},
	})
)

// Observer holds the most recent rate limit observation and blocks the
// extraction when the budget is spent. It is driven by a single goroutine:
// the client updates it after each response and consults it before the next
// request, so no locking is needed.
type Observer struct {
	logger zerolog.Logger
	last   *Budget

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewObserver creates an observer with no prior observation.
func NewObserver(logger zerolog.Logger) *Observer {
	return &Observer{
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Observe parses rate limit headers from a response. Responses without the
// remaining-calls header leave the previous observation in place.
func (o *Observer) Observe(headers http.Header) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		o.logger.Warn().
			Str("header", HeaderRemaining).
			Str("value", remainStr).
			Msg("Unparseable rate limit header, ignoring observation")
		return
	}

	resetSeconds := 0
	if resetStr := headers.Get(HeaderReset); resetStr != "" {
		if v, err := strconv.Atoi(resetStr); err == nil {
			resetSeconds = v
		}
	}

	o.last = &Budget{
		Remaining:  remaining,
		ResetAfter: time.Duration(resetSeconds) * time.Second,
		ObservedAt: o.now(),
	}

	rateLimitRemaining.Set(float64(remaining))

	if o.last.Exhausted() {
		o.logger.Info().
			Int("remaining", remaining).
			Int("reset_seconds", resetSeconds).
			Msg("Rate limit budget exhausted")
	}
}

// Last returns the most recent observation, or nil if none has been made.
func (o *Observer) Last() *Budget {
	return o.last
}

// Wait blocks until the observed budget permits another request. It returns
// immediately when no observation exists or calls remain. This is the one
// intentional blocking point of the extraction.
func (o *Observer) Wait(ctx context.Context) error {
	if o.last == nil {
		return nil
	}

	wait := o.last.WaitDuration(o.now())
	if wait <= 0 {
		return nil
	}

	o.logger.Info().
		Dur("wait", wait).
		Msg("Waiting for upstream rate limit window to reset")

	rateLimitWaitsTotal.Inc()
	rateLimitWaitSeconds.Observe(wait.Seconds())

	return o.sleep(ctx, wait)
}

// sleepCtx sleeps for d, returning early if the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
