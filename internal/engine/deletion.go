package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/gallery/internal/models"
	"github.com/lehigh-university-libraries/gallery/internal/notify"
	"github.com/lehigh-university-libraries/gallery/internal/observability"
)

// Policy decides what happens to an optimistic deletion the server rejects.
type Policy string

const (
	// PolicyKeep leaves the record removed locally. Local and server state
	// may diverge until the next full load.
	PolicyKeep Policy = "keep"
	// PolicyRollback re-inserts the record at its original position unless
	// the server has announced its removal in the meantime.
	PolicyRollback Policy = "rollback"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyKeep:
		return PolicyKeep, nil
	case PolicyRollback:
		return PolicyRollback, nil
	default:
		return "", fmt.Errorf("engine: unknown reconcile policy %q", raw)
	}
}

type State string

const (
	StatePending    State = "pending"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
	StateRolledBack State = "rolled-back"
)

// PendingDeletion correlates an optimistic removal with its confirmation
// request. Removed is false for repeat requests whose local removal was a
// no-op; those carry no Image to restore.
type PendingDeletion struct {
	Seq         uint64
	ID          string
	Image       models.Image
	Position    int
	Removed     bool
	State       State
	RequestedAt time.Time
}

type deleteMsg struct {
	id string
}

func (m deleteMsg) apply(ctx context.Context, e *Engine) bool {
	e.seq++
	p := &PendingDeletion{
		Seq:         e.seq,
		ID:          m.id,
		Position:    e.store.IndexOf(m.id),
		State:       StatePending,
		RequestedAt: time.Now(),
	}
	p.Image, _ = e.store.Get(m.id)
	p.Removed = e.store.RemoveByID(m.id)
	e.pending[p.Seq] = p
	if _, ok := e.tombstones[m.id]; !ok {
		e.tombstones[m.id] = tombLocal
	}
	if p.Removed {
		e.afterRemoval()
	}

	slog.Info("Deletion requested", "id", m.id, "seq", p.Seq, "removed", p.Removed)

	e.wg.Add(1)
	go func(seq uint64, id string) {
		defer e.wg.Done()
		err := e.deleter.DeleteImage(ctx, id)
		e.post(ctx, confirmMsg{seq: seq, err: err})
	}(p.Seq, m.id)

	return p.Removed
}

type confirmMsg struct {
	seq uint64
	err error
}

func (m confirmMsg) apply(_ context.Context, e *Engine) bool {
	p, ok := e.pending[m.seq]
	if !ok {
		return false
	}
	delete(e.pending, m.seq)

	if m.err == nil {
		p.State = StateConfirmed
		e.tombstones[p.ID] = tombConfirmed
		e.settleTombstone(p.ID)
		slog.Info("Deletion confirmed", "id", p.ID, "seq", p.Seq)
		observability.RecordDeletion(string(p.State))
		e.notifier.Notify(notify.Success("Image deleted"))
		return false
	}

	slog.Error("Deletion failed", "id", p.ID, "seq", p.Seq, "err", m.err)
	e.notifier.Notify(notify.Error("Failed to delete"))
	changed := e.settleFailure(p)
	observability.RecordDeletion(string(p.State))
	return changed
}

// settleFailure applies the reconcile policy to a rejected deletion.
// The image is never restored once the server has removed it, whether
// through a remove event or a confirmed repeat request.
func (e *Engine) settleFailure(p *PendingDeletion) bool {
	p.State = StateFailed
	if e.policy != PolicyRollback || !p.Removed {
		e.settleTombstone(p.ID)
		return false
	}
	switch e.tombstones[p.ID] {
	case tombRemote, tombConfirmed:
		slog.Info("Skipping rollback, server removed image", "id", p.ID)
		e.settleTombstone(p.ID)
		return false
	}
	// A repeat request for the same id is still in flight; let it own the
	// restore decision.
	if next := e.nextPendingFor(p.ID); next != nil {
		next.Image, next.Position, next.Removed = p.Image, p.Position, true
		return false
	}

	delete(e.tombstones, p.ID)
	if !e.store.InsertAt(p.Position, p.Image) {
		return false
	}
	p.State = StateRolledBack
	slog.Info("Deletion rolled back", "id", p.ID, "position", p.Position)
	e.rederive()
	return true
}

func (e *Engine) nextPendingFor(id string) *PendingDeletion {
	var next *PendingDeletion
	for _, p := range e.pending {
		if p.ID == id && (next == nil || p.Seq < next.Seq) {
			next = p
		}
	}
	return next
}

func (e *Engine) pendingList() []PendingDeletion {
	out := make([]PendingDeletion, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
