package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

var ErrNotFound = errors.New("object not found")

type Store struct {
	bucket *blob.Bucket
	prefix string
	owns   bool
}

// Open opens any bucket URL gocloud understands (file://, mem://, s3://, ...).
func Open(ctx context.Context, bucketURL, prefix string) (*Store, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}
	return &Store{
		bucket: bkt,
		prefix: strings.Trim(prefix, "/"),
		owns:   true,
	}, nil
}

func New(bkt *blob.Bucket, prefix string) *Store {
	return &Store{
		bucket: bkt,
		prefix: strings.Trim(prefix, "/"),
		owns:   false,
	}
}

func (s *Store) Close() error {
	if s.owns && s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func (s *Store) Bucket() *blob.Bucket {
	return s.bucket
}

func (s *Store) Prefix() string {
	return s.prefix
}

// Key joins parts under the store prefix.
func (s *Store) Key(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

type Attributes struct {
	Size        int64
	ContentType string
	ETag        string
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, Attributes, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, Attributes{}, s.mapError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Attributes{}, err
	}
	return data, Attributes{
		Size:        r.Size(),
		ContentType: r.ContentType(),
	}, nil
}

func (s *Store) ReadStream(ctx context.Context, key string) (*blob.Reader, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, s.mapError(err)
	}
	return r, nil
}

func (s *Store) Attributes(ctx context.Context, key string) (Attributes, error) {
	attr, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return Attributes{}, s.mapError(err)
	}
	return Attributes{
		Size:        attr.Size,
		ContentType: attr.ContentType,
		ETag:        attr.ETag,
	}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

func (s *Store) Write(ctx context.Context, key string, data []byte, contentType string) (Attributes, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return Attributes{}, s.mapError(err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return Attributes{}, err
	}
	if err := w.Close(); err != nil {
		return Attributes{}, s.mapError(err)
	}
	return Attributes{Size: int64(len(data)), ContentType: contentType}, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

type ObjectInfo struct {
	Key  string
	Size int64
}

// List returns every object under the store prefix, skipping directories.
func (s *Store) List(ctx context.Context) ([]ObjectInfo, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})

	var objects []ObjectInfo
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return objects, nil
}

func (s *Store) mapError(err error) error {
	if err == nil {
		return nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return ErrNotFound
	}
	return err
}
