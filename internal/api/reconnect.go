package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/gallery/internal/events"
)

var errSubscriptionClosed = errors.New("subscription closed")

type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	if attempt > 1 {
		if cfg.Multiplier < 1.0 {
			cfg.Multiplier = 1.0
		}
		delay *= math.Pow(cfg.Multiplier, float64(attempt-1))
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Reconnecting keeps the push channel of the wrapped Subscriber open. The
// first connection is made lazily by Next and, like every reconnect after
// a break, is retried with backoff until it succeeds or ctx ends. Events
// published while disconnected are not replayed.
type Reconnecting struct {
	Subscriber events.Subscriber
	Backoff    BackoffConfig
}

func (r *Reconnecting) Subscribe(ctx context.Context) (events.Subscription, error) {
	return &reconnectingSub{
		parent: r,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

type reconnectingSub struct {
	parent *Reconnecting
	rng    *rand.Rand
	// failures counts consecutive unsuccessful connects; only Next touches it.
	failures int

	mu      sync.Mutex
	current events.Subscription
	closed  bool
}

func (s *reconnectingSub) Next(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		current, closed := s.current, s.closed
		s.mu.Unlock()
		if closed {
			return nil, errSubscriptionClosed
		}
		if current == nil {
			if err := s.connect(ctx); err != nil {
				return nil, err
			}
			continue
		}

		payload, err := current.Next(ctx)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Image stream broken, reconnecting", "err", err)
		s.mu.Lock()
		if s.current == current {
			s.current = nil
		}
		s.mu.Unlock()
		_ = current.Close()
		s.failures = 1
	}
}

func (s *reconnectingSub) connect(ctx context.Context) error {
	for {
		if s.failures > 0 {
			delay := NextBackoffDelay(s.parent.Backoff, s.failures, s.rng)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err := s.open(ctx)
		if err == nil {
			if s.failures > 0 {
				slog.Info("Image stream connected", "attempt", s.failures+1)
			}
			s.failures = 0
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errSubscriptionClosed) {
			return err
		}
		s.failures++
		slog.Warn("Unable to open image stream, retrying", "attempt", s.failures, "err", err)
	}
}

func (s *reconnectingSub) open(ctx context.Context) error {
	next, err := s.parent.Subscriber.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = next.Close()
		return errSubscriptionClosed
	}
	s.current = next
	return nil
}

func (s *reconnectingSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.current != nil {
		return s.current.Close()
	}
	return nil
}
