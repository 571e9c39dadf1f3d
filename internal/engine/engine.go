// Package engine reconciles the gallery collection from three sources: the
// initial bulk load, the push channel, and local optimistic deletions.
//
// Every mutation is a message on one queue consumed by a single loop
// goroutine, so no two mutations of the collection or the carousel ever
// interleave. Network I/O runs on helper goroutines that post their results
// back to the queue.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lehigh-university-libraries/gallery/internal/carousel"
	"github.com/lehigh-university-libraries/gallery/internal/collection"
	"github.com/lehigh-university-libraries/gallery/internal/events"
	"github.com/lehigh-university-libraries/gallery/internal/models"
	"github.com/lehigh-university-libraries/gallery/internal/notify"
)

var (
	ErrStopped        = errors.New("engine: stopped")
	ErrAlreadyRunning = errors.New("engine: already running")
)

const DefaultQueueSize = 64

// Loader performs the one-shot bulk load.
type Loader interface {
	ListImages(ctx context.Context) ([]models.Image, error)
}

// Deleter confirms a deletion with the server.
type Deleter interface {
	DeleteImage(ctx context.Context, id string) error
}

// Remote is everything the engine needs from the server.
type Remote interface {
	Loader
	Deleter
	events.Subscriber
}

type Config struct {
	Slots     int
	Interval  time.Duration
	Policy    Policy
	QueueSize int
}

// View is a render-ready projection of the engine state.
type View struct {
	Images  []models.Image
	Indices []int
	Slots   []carousel.Slot
}

type Option func(*Engine)

func WithStore(store *collection.Store) Option {
	return func(e *Engine) { e.store = store }
}

func WithScheduler(s *carousel.Scheduler) Option {
	return func(e *Engine) { e.carousel = s }
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSubscriber replaces the push channel source, for example with a
// reconnecting wrapper around the remote.
func WithSubscriber(s events.Subscriber) Option {
	return func(e *Engine) { e.subscriber = s }
}

// WithObserver registers fn to receive a View after every loop turn that
// changed the collection or the carousel. fn runs on the loop goroutine.
func WithObserver(fn func(View)) Option {
	return func(e *Engine) { e.observer = fn }
}

type Engine struct {
	store      *collection.Store
	carousel   *carousel.Scheduler
	loader     Loader
	deleter    Deleter
	subscriber events.Subscriber
	notifier   notify.Notifier
	observer   func(View)
	policy     Policy

	queue   chan message
	done    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup

	// owned by the loop goroutine
	seq         uint64
	pending     map[uint64]*PendingDeletion
	tombstones  map[string]tombstone
	loadSettled bool
}

func New(cfg Config, remote Remote, opts ...Option) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("engine: remote is required")
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyKeep
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	e := &Engine{
		loader:     remote,
		deleter:    remote,
		subscriber: remote,
		notifier:   notify.Discard,
		policy:     policy,
		queue:      make(chan message, queueSize),
		done:       make(chan struct{}),
		pending:    make(map[uint64]*PendingDeletion),
		tombstones: make(map[string]tombstone),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = collection.New()
	}
	if e.carousel == nil {
		slots := cfg.Slots
		if slots == 0 {
			slots = carousel.DefaultSlots
		}
		s, err := carousel.New(slots, carousel.WithInterval(cfg.Interval))
		if err != nil {
			return nil, err
		}
		e.carousel = s
	}
	return e, nil
}

func (e *Engine) Store() *collection.Store {
	return e.store
}

func (e *Engine) Carousel() *carousel.Scheduler {
	return e.carousel
}

// Run starts the bulk load and the push subscription, then processes
// messages until ctx is cancelled. The subscription and the ticker are
// released before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer close(e.done)
	defer cancel()

	e.wg.Add(2)
	go e.load(ctx)
	go e.pump(ctx)

	slog.Info("Engine started", "slots", e.carousel.SlotCount(), "policy", string(e.policy))
	e.loop(ctx)

	e.carousel.Stop()
	cancel()
	e.wg.Wait()
	slog.Info("Engine stopped")
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.queue:
			if msg.apply(ctx, e) {
				e.publish()
			}
		case <-e.carousel.Ticks():
			e.carousel.Advance(e.store.Len())
			e.publish()
		}
	}
}

func (e *Engine) load(ctx context.Context) {
	defer e.wg.Done()
	images, err := e.loader.ListImages(ctx)
	if ctx.Err() != nil {
		return
	}
	e.post(ctx, loadedMsg{images: images, err: err})
}

// pump opens the push channel and feeds it into the queue. The
// subscription is closed exactly once, when ctx ends or the stream fails.
func (e *Engine) pump(ctx context.Context) {
	defer e.wg.Done()
	sub, err := e.subscriber.Subscribe(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.post(ctx, subscribeFailedMsg{err: err})
		}
		return
	}

	var once sync.Once
	closeSub := func() {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				slog.Debug("Image stream close failed", "err", err)
			}
		})
	}
	stop := context.AfterFunc(ctx, closeSub)
	defer stop()
	defer closeSub()

	err = events.Pump(ctx, sub,
		func(cmd events.Command) bool {
			return e.post(ctx, eventMsg{cmd: cmd})
		},
		recordDropped,
	)
	if ctx.Err() != nil {
		return
	}
	e.post(ctx, streamEndedMsg{err: err})
}

// post enqueues msg unless ctx is done or the engine has stopped.
func (e *Engine) post(ctx context.Context, msg message) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.queue <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-e.done:
		return false
	}
}

func (e *Engine) call(ctx context.Context, msg message) error {
	if !e.post(ctx, msg) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStopped
	}
	return nil
}

// RequestDeletion removes id optimistically on the next loop turn and then
// asks the server to confirm.
func (e *Engine) RequestDeletion(ctx context.Context, id string) error {
	return e.call(ctx, deleteMsg{id: id})
}

// SetSlotCount changes the number of carousel slots and re-derives indices.
func (e *Engine) SetSlotCount(ctx context.Context, n int) error {
	if err := carousel.ValidateSlotCount(n); err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := e.call(ctx, slotsMsg{n: n, reply: reply}); err != nil {
		return err
	}
	return e.await(ctx, reply)
}

// Flush returns once every message queued before it has been applied.
func (e *Engine) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := e.call(ctx, flushMsg{reply: reply}); err != nil {
		return err
	}
	return e.await(ctx, reply)
}

// Pending lists deletions awaiting confirmation, oldest first.
func (e *Engine) Pending(ctx context.Context) ([]PendingDeletion, error) {
	reply := make(chan []PendingDeletion, 1)
	if err := e.call(ctx, pendingMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrStopped
	}
}

func (e *Engine) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// View renders the current state. Safe to call from any goroutine.
func (e *Engine) View() View {
	images := e.store.Snapshot()
	indices := e.carousel.Indices()
	return View{
		Images:  images,
		Indices: indices,
		Slots:   carousel.Render(indices, images),
	}
}

func (e *Engine) publish() {
	if e.observer != nil {
		e.observer(e.View())
	}
}

// rederive runs after every collection or slot count change.
func (e *Engine) rederive() {
	e.carousel.Rederive(e.store.Len())
}

// afterRemoval resets the carousel to the sentinel in the same turn a
// removal empties the collection, then re-derives.
func (e *Engine) afterRemoval() {
	if e.store.Len() == 0 {
		e.carousel.Reset()
	}
	e.rederive()
}
