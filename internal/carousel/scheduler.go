// Package carousel keeps N independent cyclic slot indices over a collection
// whose size changes underneath them.
//
// Indices are always valid for the size they were last derived against:
// every index is in [0, size) when size > 0 and every index is 0 when the
// collection is empty. Re-derivation runs on every size or slot count change
// and owns the only ticker; advancement happens on that ticker.
package carousel

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	MinSlots        = 1
	MaxSlots        = 8
	DefaultSlots    = 2
	DefaultInterval = 2 * time.Second
)

var ErrInvalidSlotCount = errors.New("carousel: slot count out of range")

type Option func(*Scheduler)

// WithInterval sets the advance period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTicker replaces the ticker constructor.
func WithTicker(fn TickerFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.newTicker = fn
		}
	}
}

type Scheduler struct {
	mu        sync.RWMutex
	indices   []int
	size      int
	interval  time.Duration
	newTicker TickerFunc
	ticker    Ticker
}

func New(slots int, opts ...Option) (*Scheduler, error) {
	if err := ValidateSlotCount(slots); err != nil {
		return nil, err
	}
	s := &Scheduler{
		indices:   make([]int, slots),
		interval:  DefaultInterval,
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ValidateSlotCount(n int) error {
	if n < MinSlots || n > MaxSlots {
		return fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidSlotCount, n, MinSlots, MaxSlots)
	}
	return nil
}

// ClampSlotCount maps user input onto the valid range.
func ClampSlotCount(n int) int {
	if n < MinSlots {
		return MinSlots
	}
	if n > MaxSlots {
		return MaxSlots
	}
	return n
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) SlotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indices)
}

// Indices returns a copy of the current slot indices.
func (s *Scheduler) Indices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	return out
}

// Size is the collection size the indices were last derived against.
func (s *Scheduler) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// SetSlotCount changes N and re-derives against size.
func (s *Scheduler) SetSlotCount(n, size int) error {
	if err := ValidateSlotCount(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = resize(s.indices, n)
	s.rederiveLocked(size)
	return nil
}

// Rederive maps every index into [0, size) and re-arms the ticker. An empty
// collection forces all indices to 0 and leaves the ticker disarmed.
func (s *Scheduler) Rederive(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rederiveLocked(size)
}

func (s *Scheduler) rederiveLocked(size int) {
	if size < 0 {
		size = 0
	}
	s.size = size
	s.disarmLocked()
	if size == 0 {
		zero(s.indices)
		return
	}
	for i, idx := range s.indices {
		s.indices[i] = mod(idx, size)
	}
	s.ticker = s.newTicker(s.interval)
}

// Advance moves every slot one step forward modulo size. It is a no-op on an
// empty collection.
func (s *Scheduler) Advance(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size <= 0 {
		zero(s.indices)
		return
	}
	s.size = size
	for i, idx := range s.indices {
		s.indices[i] = mod(idx+1, size)
	}
}

// Reset sets every index to the empty-collection sentinel without touching
// the ticker.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	zero(s.indices)
}

// Ticks returns the active ticker channel, or nil when disarmed. A nil
// channel never fires in a select.
func (s *Scheduler) Ticks() <-chan time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C()
}

func (s *Scheduler) Armed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticker != nil
}

// Stop releases the ticker.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *Scheduler) disarmLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func resize(indices []int, n int) []int {
	if n <= len(indices) {
		return indices[:n:n]
	}
	out := make([]int, n)
	copy(out, indices)
	return out
}

func zero(indices []int) {
	for i := range indices {
		indices[i] = 0
	}
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
