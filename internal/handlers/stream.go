package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tmaxmax/go-sse"
)

func comment(text string) *sse.Message {
	m := &sse.Message{}
	m.AppendComment(text)
	return m
}

// HandleStream serves the push channel as server-sent events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	session, err := sse.Upgrade(w, r)
	if err != nil {
		h.writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, events, cancel := h.hub.Subscribe()
	defer cancel()

	if err := send(session, comment("connected")); err != nil {
		slog.Debug("Unable to open stream", "subscriber", id, "err", err)
		return
	}
	slog.Info("Stream client connected", "subscriber", id, "remote", r.RemoteAddr)

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("Stream client disconnected", "subscriber", id)
			return
		case payload, open := <-events:
			if !open {
				slog.Info("Stream subscription ended", "subscriber", id)
				return
			}
			msg := &sse.Message{}
			msg.AppendData(string(payload))
			if err := send(session, msg); err != nil {
				slog.Debug("Unable to write stream event", "subscriber", id, "err", err)
				return
			}
		case <-keepAlive.C:
			if err := send(session, comment("keep-alive")); err != nil {
				return
			}
		}
	}
}

func send(s *sse.Session, m *sse.Message) error {
	if err := s.Send(m); err != nil {
		return err
	}
	return s.Flush()
}
