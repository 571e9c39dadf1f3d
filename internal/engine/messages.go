package engine

import (
	"context"
	"log/slog"

	"github.com/lehigh-university-libraries/gallery/internal/events"
	"github.com/lehigh-university-libraries/gallery/internal/models"
	"github.com/lehigh-university-libraries/gallery/internal/notify"
	"github.com/lehigh-university-libraries/gallery/internal/observability"
)

// message is one loop turn. apply reports whether the rendered state may
// have changed.
type message interface {
	apply(ctx context.Context, e *Engine) bool
}

// tombstone marks an id that must not be resurrected by a late add event or
// by the bulk load. Once the load has settled a tombstone only lives while
// a deletion for its id is still pending.
type tombstone int

const (
	tombLocal tombstone = iota + 1
	tombRemote
	tombConfirmed
)

// settleTombstone drops the tombstone for id when nothing can resurrect it
// anymore.
func (e *Engine) settleTombstone(id string) {
	if e.loadSettled && e.nextPendingFor(id) == nil {
		delete(e.tombstones, id)
	}
}

type loadedMsg struct {
	images []models.Image
	err    error
}

// apply installs the bulk load. Records that arrived on the push channel
// before the load resolved are kept after the loaded ones, and tombstoned
// ids are filtered out, so the load can land before or after any event.
func (m loadedMsg) apply(_ context.Context, e *Engine) bool {
	e.loadSettled = true
	defer e.pruneTombstones()
	if m.err != nil {
		slog.Error("Failed to load images", "err", m.err)
		e.notifier.Notify(notify.Error("Failed to load images"))
		return false
	}

	earlier := e.store.Snapshot()
	loaded := make([]models.Image, 0, len(m.images))
	for _, img := range m.images {
		if _, dead := e.tombstones[img.ID]; dead {
			continue
		}
		loaded = append(loaded, img)
	}
	e.store.ReplaceAll(loaded)
	for _, img := range earlier {
		e.store.InsertIfAbsent(img)
	}

	slog.Info("Images loaded", "count", e.store.Len(), "filtered", len(m.images)-len(loaded))
	e.rederive()
	return true
}

func (e *Engine) pruneTombstones() {
	for id := range e.tombstones {
		e.settleTombstone(id)
	}
}

type eventMsg struct {
	cmd events.Command
}

func (m eventMsg) apply(_ context.Context, e *Engine) bool {
	switch m.cmd.Kind {
	case events.KindAdd:
		if _, dead := e.tombstones[m.cmd.ID]; dead {
			slog.Debug("Ignoring add for deleted image", "id", m.cmd.ID)
			observability.RecordEngineEvent("add", "suppressed")
			return false
		}
		if !e.store.InsertIfAbsent(m.cmd.Image) {
			observability.RecordEngineEvent("add", "noop")
			return false
		}
		slog.Debug("Image added", "id", m.cmd.ID, "name", m.cmd.Image.Name)
		observability.RecordEngineEvent("add", "applied")
		e.rederive()
		return true

	case events.KindRemove:
		e.tombstones[m.cmd.ID] = tombRemote
		e.settleTombstone(m.cmd.ID)
		if !e.store.RemoveByID(m.cmd.ID) {
			observability.RecordEngineEvent("remove", "noop")
			return false
		}
		slog.Debug("Image removed", "id", m.cmd.ID)
		observability.RecordEngineEvent("remove", "applied")
		e.afterRemoval()
		return true
	}
	return false
}

func recordDropped(payload []byte) {
	slog.Debug("Dropping malformed push payload", "bytes", len(payload))
	observability.RecordEngineEvent("malformed", "dropped")
}

type streamEndedMsg struct {
	err error
}

func (m streamEndedMsg) apply(_ context.Context, e *Engine) bool {
	slog.Warn("Image stream closed", "err", m.err)
	e.notifier.Notify(notify.Error("Image stream disconnected"))
	return false
}

type subscribeFailedMsg struct {
	err error
}

func (m subscribeFailedMsg) apply(_ context.Context, e *Engine) bool {
	slog.Error("Unable to open image stream", "err", m.err)
	e.notifier.Notify(notify.Error("Failed to connect to image stream"))
	return false
}

type slotsMsg struct {
	n     int
	reply chan<- error
}

func (m slotsMsg) apply(_ context.Context, e *Engine) bool {
	err := e.carousel.SetSlotCount(m.n, e.store.Len())
	m.reply <- err
	if err != nil {
		return false
	}
	slog.Debug("Slot count changed", "slots", m.n)
	return true
}

type flushMsg struct {
	reply chan<- error
}

func (m flushMsg) apply(context.Context, *Engine) bool {
	m.reply <- nil
	return false
}

type pendingMsg struct {
	reply chan<- []PendingDeletion
}

func (m pendingMsg) apply(_ context.Context, e *Engine) bool {
	m.reply <- e.pendingList()
	return false
}
