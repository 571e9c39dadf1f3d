package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/gallery/internal/events"
	"github.com/lehigh-university-libraries/gallery/internal/models"
	"github.com/tmaxmax/go-sse"
)

func TestListImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/images" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"a","name":"a.png","path":"images/a_a.png"},{"id":"b","name":"b.png","path":"images/b_b.png"}]`)
	}))
	defer server.Close()

	images, err := NewClient(server.URL + "/").ListImages(context.Background())
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(images) != 2 || images[0].ID != "a" || images[1].Path != "images/b_b.png" {
		t.Errorf("Unexpected images: %+v", images)
	}
}

func TestDeleteImageStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  bool
		notFound bool
	}{
		{name: "no content", status: http.StatusNoContent},
		{name: "ok", status: http.StatusOK},
		{name: "not found", status: http.StatusNotFound, wantErr: true, notFound: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("Expected DELETE, got %s", r.Method)
				}
				path = r.URL.Path
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewClient(server.URL).DeleteImage(context.Background(), "abc")
			if path != "/api/images/abc" {
				t.Errorf("Expected /api/images/abc, got %s", path)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, ErrNotFound) != tt.notFound {
				t.Errorf("Expected ErrNotFound=%v, got %v", tt.notFound, err)
			}
			var statusErr *StatusError
			if tt.wantErr && (!errors.As(err, &statusErr) || statusErr.Code != tt.status) {
				t.Errorf("Expected StatusError with code %d, got %v", tt.status, err)
			}
		})
	}
}

func TestUploadImageSendsMultipartFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected multipart file field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "cat.png" || string(data) != "pixels" {
			t.Errorf("Unexpected upload %s %q", header.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.Image{ID: "new", Name: header.Filename, Path: "images/new_cat.png"})
	}))
	defer server.Close()

	img, err := NewClient(server.URL).UploadImage(context.Background(), "cat.png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if img.ID != "new" || img.Name != "cat.png" {
		t.Errorf("Unexpected image: %+v", img)
	}
}

func TestGetImageNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewClient(server.URL).GetImage(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func streamServer(t *testing.T, payloads ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/images/stream" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", eventStreamType)
		hello := &sse.Message{}
		hello.AppendComment("connected")
		_, _ = hello.WriteTo(w)
		for _, p := range payloads {
			msg := &sse.Message{}
			msg.AppendData(p)
			_, _ = msg.WriteTo(w)
		}
		w.(http.Flusher).Flush()
	}))
}

func TestSubscribeReadsEvents(t *testing.T) {
	add, _ := events.AddPayload(models.Image{ID: "a", Name: "a.png", Path: "p"})
	remove, _ := events.RemovePayload("a")
	server := streamServer(t, string(add), string(remove))
	defer server.Close()

	ctx := context.Background()
	sub, err := NewClient(server.URL).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	for _, expected := range [][]byte{add, remove} {
		got, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if string(got) != string(expected) {
			t.Errorf("Expected %s, got %s", expected, got)
		}
	}
	if _, err := sub.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF at end of stream, got %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("Expected second Close to be harmless, got %v", err)
	}
}

func TestSubscribeHandlesEventFraming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", eventStreamType+"; charset=utf-8")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "id: 7\nevent: image\ndata: line one\ndata: line two\n\n")
		fmt.Fprint(w, "retry: 1500\n\n")
		fmt.Fprint(w, "data:\"deleted:a\"\r\n\r\n")
	}))
	defer server.Close()

	ctx := context.Background()
	sub, err := NewClient(server.URL).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	for _, expected := range []string{"line one\nline two", `"deleted:a"`} {
		got, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if string(got) != expected {
			t.Errorf("Expected %q, got %q", expected, got)
		}
	}
	if _, err := sub.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF at end of stream, got %v", err)
	}
}

func TestSubscribeRejectsNonStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	if _, err := NewClient(server.URL).Subscribe(context.Background()); err == nil {
		t.Error("Expected an error for a non event-stream response")
	}
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	tests := map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		5: time.Second,
	}
	for attempt, expected := range tests {
		if got := NextBackoffDelay(cfg, attempt, nil); got != expected {
			t.Errorf("attempt %d: expected %s, got %s", attempt, expected, got)
		}
	}

	cfg.Jitter = true
	if got := NextBackoffDelay(cfg, 1, nil); got != 50*time.Millisecond {
		t.Errorf("Expected jitter without rng to halve the delay, got %s", got)
	}
	if got := NextBackoffDelay(BackoffConfig{}, 3, nil); got != 0 {
		t.Errorf("Expected zero delay for zero config, got %s", got)
	}
}

type scriptedSubscription struct {
	payloads [][]byte
	closed   atomic.Bool
}

func (s *scriptedSubscription) Next(ctx context.Context) ([]byte, error) {
	if len(s.payloads) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return p, nil
}

func (s *scriptedSubscription) Close() error {
	s.closed.Store(true)
	return nil
}

type scriptedSubscriber struct {
	mu      sync.Mutex
	scripts [][][]byte
	fails   int
	opened  []*scriptedSubscription
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context) (events.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return nil, errors.New("connection refused")
	}
	if len(s.scripts) == 0 {
		return nil, errors.New("no more scripts")
	}
	sub := &scriptedSubscription{payloads: s.scripts[0]}
	s.scripts = s.scripts[1:]
	s.opened = append(s.opened, sub)
	return sub, nil
}

func TestReconnectingResumesAfterBreak(t *testing.T) {
	upstream := &scriptedSubscriber{
		scripts: [][][]byte{
			{[]byte("one")},
			{[]byte("two"), []byte("three")},
		},
	}
	r := &Reconnecting{
		Subscriber: upstream,
		Backoff:    BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := r.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// the first connection attempt fails and is retried
	upstream.mu.Lock()
	upstream.fails = 1
	upstream.mu.Unlock()

	var got []string
	for range 3 {
		p, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, string(p))
	}
	if strings.Join(got, ",") != "one,two,three" {
		t.Errorf("Expected one,two,three, got %v", got)
	}

	upstream.mu.Lock()
	first := upstream.opened[0]
	upstream.mu.Unlock()
	if !first.closed.Load() {
		t.Error("Expected the broken subscription to be closed")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := sub.Next(ctx); !errors.Is(err, errSubscriptionClosed) {
		t.Errorf("Expected errSubscriptionClosed after Close, got %v", err)
	}
}

func TestReconnectingRetriesInitialConnect(t *testing.T) {
	upstream := &scriptedSubscriber{
		scripts: [][][]byte{{[]byte("one")}},
		fails:   3,
	}
	r := &Reconnecting{
		Subscriber: upstream,
		Backoff:    BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := r.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Expected Subscribe to defer the connection, got %v", err)
	}
	defer sub.Close()

	p, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(p) != "one" {
		t.Errorf("Expected one, got %q", p)
	}
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	if upstream.fails != 0 || len(upstream.opened) != 1 {
		t.Errorf("Expected three failed attempts then one connection, got fails=%d opened=%d", upstream.fails, len(upstream.opened))
	}
}

func TestReconnectingGivesUpWithContext(t *testing.T) {
	r := &Reconnecting{
		Subscriber: &scriptedSubscriber{},
		Backoff:    BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sub, err := r.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded while the server stays down, got %v", err)
	}
}
