package events

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/lehigh-university-libraries/gallery/internal/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		ok       bool
		expected Command
	}{
		{
			name:     "add",
			payload:  `{"id":"c","name":"n","path":"p"}`,
			ok:       true,
			expected: Command{Kind: KindAdd, ID: "c", Image: models.Image{ID: "c", Name: "n", Path: "p"}},
		},
		{
			name:     "add with extra fields",
			payload:  `{"id":"c","name":"n","path":"p","size":12}`,
			ok:       true,
			expected: Command{Kind: KindAdd, ID: "c", Image: models.Image{ID: "c", Name: "n", Path: "p"}},
		},
		{
			name:     "remove",
			payload:  `"deleted:a"`,
			ok:       true,
			expected: Command{Kind: KindRemove, ID: "a"},
		},
		{
			name:     "remove keeps later prefix text",
			payload:  `"deleted:deleted:x"`,
			ok:       true,
			expected: Command{Kind: KindRemove, ID: "deleted:x"},
		},
		{name: "not json", payload: `not json`},
		{name: "number", payload: `42`},
		{name: "unknown object", payload: `{"foo":1}`},
		{name: "missing path", payload: `{"id":"c","name":"n"}`},
		{name: "empty id", payload: `{"id":"","name":"n","path":"p"}`},
		{name: "non-string id", payload: `{"id":7,"name":"n","path":"p"}`},
		{name: "unprefixed string", payload: `"hello"`},
		{name: "bare prefix", payload: `"deleted:"`},
		{name: "unquoted remove", payload: `deleted:a`},
		{name: "array", payload: `["deleted:a"]`},
		{name: "null", payload: `null`},
		{name: "empty", payload: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode([]byte(tt.payload))
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v (%+v)", tt.ok, ok, got)
			}
			if ok && got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestPayloadsDecodeBack(t *testing.T) {
	img := models.Image{ID: "x", Name: "x.png", Path: "images/x_x.png"}
	add, err := AddPayload(img)
	if err != nil {
		t.Fatal(err)
	}
	if cmd, ok := Decode(add); !ok || cmd.Kind != KindAdd || cmd.Image != img {
		t.Errorf("Expected add for %+v, got %+v", img, cmd)
	}

	remove, err := RemovePayload("x")
	if err != nil {
		t.Fatal(err)
	}
	if string(remove) != `"deleted:x"` {
		t.Errorf("Expected JSON string payload, got %s", remove)
	}
}

type sliceSubscription struct {
	payloads []string
	closed   bool
}

func (s *sliceSubscription) Next(ctx context.Context) ([]byte, error) {
	if len(s.payloads) == 0 {
		return nil, io.EOF
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return []byte(p), nil
}

func (s *sliceSubscription) Close() error {
	s.closed = true
	return nil
}

func TestPumpOrderAndDrops(t *testing.T) {
	sub := &sliceSubscription{payloads: []string{
		`{"id":"a","name":"a","path":"a"}`,
		`not json`,
		`"deleted:a"`,
		`{"foo":1}`,
		`{"id":"b","name":"b","path":"b"}`,
	}}

	var delivered []string
	dropped := 0
	err := Pump(context.Background(), sub, func(cmd Command) bool {
		delivered = append(delivered, cmd.Kind.String()+":"+cmd.ID)
		return true
	}, func([]byte) { dropped++ })

	if !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
	expected := []string{"add:a", "remove:a", "add:b"}
	if len(delivered) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, delivered)
	}
	for i := range expected {
		if delivered[i] != expected[i] {
			t.Errorf("Expected %v, got %v", expected, delivered)
		}
	}
	if dropped != 2 {
		t.Errorf("Expected 2 dropped payloads, got %d", dropped)
	}
}

func TestPumpStopsWhenDeliverRefuses(t *testing.T) {
	sub := &sliceSubscription{payloads: []string{`"deleted:a"`, `"deleted:b"`}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Pump(ctx, sub, func(Command) bool {
		calls++
		return false
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected pump to stop after one delivery, got %d", calls)
	}
}
