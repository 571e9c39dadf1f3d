// Package events decodes push-channel payloads into collection commands.
//
// A payload is one JSON value. An object with non-empty string id, name and
// path fields is an add; the JSON string "deleted:<id>" is a remove. Every
// other payload, including invalid JSON, is noise and is dropped without an
// error.
package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/lehigh-university-libraries/gallery/internal/models"
)

const DeletedPrefix = "deleted:"

type Kind int

const (
	KindAdd Kind = iota + 1
	KindRemove
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Command is a decoded push event.
type Command struct {
	Kind  Kind
	Image models.Image
	ID    string
}

// Decode reports false for anything that is not a valid add or remove.
func Decode(payload []byte) (Command, bool) {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return Command{}, false
	}

	switch v := value.(type) {
	case string:
		if !strings.HasPrefix(v, DeletedPrefix) {
			return Command{}, false
		}
		id := strings.TrimPrefix(v, DeletedPrefix)
		if id == "" {
			return Command{}, false
		}
		return Command{Kind: KindRemove, ID: id}, true
	case map[string]any:
		id, okID := nonEmptyString(v["id"])
		name, okName := nonEmptyString(v["name"])
		path, okPath := nonEmptyString(v["path"])
		if !okID || !okName || !okPath {
			return Command{}, false
		}
		img := models.Image{ID: id, Name: name, Path: path}
		return Command{Kind: KindAdd, Image: img, ID: id}, true
	default:
		return Command{}, false
	}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

// AddPayload encodes the add event for img.
func AddPayload(img models.Image) ([]byte, error) {
	return json.Marshal(img)
}

// RemovePayload encodes the remove event for id.
func RemovePayload(id string) ([]byte, error) {
	return json.Marshal(DeletedPrefix + id)
}

// Subscription is an open push channel. Next blocks until the next payload;
// it returns an error once the channel is closed or broken.
type Subscription interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Subscriber opens push channels.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Pump reads sub in arrival order, handing every decodable command to
// deliver and every other payload to drop. It returns when Next fails or
// deliver reports false. drop may be nil.
func Pump(ctx context.Context, sub Subscription, deliver func(Command) bool, drop func([]byte)) error {
	for {
		payload, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		cmd, ok := Decode(payload)
		if !ok {
			if drop != nil {
				drop(payload)
			}
			continue
		}
		if !deliver(cmd) {
			return ctx.Err()
		}
	}
}
