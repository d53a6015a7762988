package lock

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
)

// BreakerSettings configure the failover circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// FailoverLocker uses the primary locker while it is healthy and the
// fallback once the breaker around the primary opens.
type FailoverLocker struct {
	primary  Locker
	fallback Locker
	breaker  *gobreaker.CircuitBreaker[func()]
	logger   zerolog.Logger
}

// NewFailoverLocker wraps primary with a circuit breaker.
func NewFailoverLocker(primary, fallback Locker, st BreakerSettings, logger zerolog.Logger) *FailoverLocker {
	if st.FailureThreshold == 0 {
		st.FailureThreshold = 3
	}
	if st.OpenTimeout <= 0 {
		st.OpenTimeout = 30 * time.Second
	}
	log := logger.With().Str("component", "lock_failover").Logger()

	settings := gobreaker.Settings{
		Name:        "booking-lock",
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.FailureThreshold
		},
		// A held key or an expired request deadline says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrConflict)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		breaker:  gobreaker.NewCircuitBreaker[func()](settings),
		logger:   log,
	}
}

func (l *FailoverLocker) Acquire(ctx context.Context, key string) (func(), error) {
	release, err := l.breaker.Execute(func() (func(), error) {
		return l.primary.Acquire(ctx, key)
	})
	if err == nil {
		return release, nil
	}
	if errors.Is(err, model.ErrConflict) {
		return nil, err
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.IncLockAcquisition("failover", "breaker_open")
	} else {
		l.logger.Warn().Err(err).Str("key", key).Msg("primary lock unavailable, using fallback")
		metrics.IncLockAcquisition("failover", "primary_error")
	}
	return l.fallback.Acquire(ctx, key)
}

// State reports the breaker state for health checks.
func (l *FailoverLocker) State() string {
	return l.breaker.State().String()
}
