package blobstore

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	new  func(t *testing.T, prefix string) *Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "memory", new: func(t *testing.T, prefix string) *Store {
			return NewMemory(prefix)
		}},
		{name: "file", new: func(t *testing.T, prefix string) *Store {
			s, err := NewFile(context.Background(), t.TempDir(), prefix)
			require.NoError(t, err)
			return s
		}},
	}
}

func forEachStore(t *testing.T, prefix string, fn func(t *testing.T, s *Store)) {
	t.Helper()
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			s := factory.new(t, prefix)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestWriteReadDelete(t *testing.T) {
	forEachStore(t, "images", func(t *testing.T, s *Store) {
		ctx := context.Background()
		key := s.Key("abc_cat.png")
		require.Equal(t, "images/abc_cat.png", key)

		_, err := s.Write(ctx, key, []byte("pixels"), "image/png")
		require.NoError(t, err)

		data, attr, err := s.Read(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []byte("pixels"), data)
		require.Equal(t, int64(6), attr.Size)

		attr, err = s.Attributes(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "image/png", attr.ContentType)

		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.Delete(ctx, key), "delete must be idempotent")

		_, _, err = s.Read(ctx, key)
		require.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestListUnderPrefix(t *testing.T) {
	forEachStore(t, "images", func(t *testing.T, s *Store) {
		ctx := context.Background()
		for _, name := range []string{"1_a.png", "2_b.png"} {
			_, err := s.Write(ctx, s.Key(name), []byte(name), "")
			require.NoError(t, err)
		}
		require.NoError(t, s.Bucket().WriteAll(ctx, "other/3_c.png", []byte("x"), nil))

		objects, err := s.List(ctx)
		require.NoError(t, err)
		keys := make([]string, 0, len(objects))
		for _, o := range objects {
			keys = append(keys, o.Key)
		}
		sort.Strings(keys)
		require.Equal(t, []string{"images/1_a.png", "images/2_b.png"}, keys)
	})
}
