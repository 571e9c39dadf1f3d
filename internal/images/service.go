// Package images implements the server side of the gallery: stored bytes,
// records in upload order, metadata, and change notifications.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/gallery/internal/blobstore"
	"github.com/lehigh-university-libraries/gallery/internal/events"
	"github.com/lehigh-university-libraries/gallery/internal/models"
	"github.com/lehigh-university-libraries/gallery/internal/storage"
)

var ErrNotFound = errors.New("image not found")

// Publisher receives encoded push payloads.
type Publisher interface {
	Publish(payload []byte)
}

type Service struct {
	images   *storage.ImageStore
	metadata storage.MetadataStore
	blobs    *blobstore.Store
	events   Publisher
}

func NewService(images *storage.ImageStore, metadata storage.MetadataStore, blobs *blobstore.Store, events Publisher) *Service {
	return &Service{
		images:   images,
		metadata: metadata,
		blobs:    blobs,
		events:   events,
	}
}

// SaveImage stores data under a fresh id and announces the new record.
func (s *Service) SaveImage(ctx context.Context, filename, contentType string, data []byte) (models.Image, error) {
	id := uuid.NewString()
	name := cleanFilename(filename)
	key := s.blobs.Key(id + "_" + name)

	mimeType := detectMimeType(contentType, data)
	if _, err := s.blobs.Write(ctx, key, data, mimeType); err != nil {
		return models.Image{}, fmt.Errorf("failed to store image: %w", err)
	}

	img := models.Image{ID: id, Name: name, Path: key}
	meta := models.ImageMetadata{
		ID:       id,
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}
	if width, height, err := getImageDimensions(data); err == nil {
		meta.Width, meta.Height = width, height
	} else {
		slog.Debug("Unable to read image dimensions", "id", id, "name", name, "err", err)
	}

	if err := s.metadata.Set(meta); err != nil {
		_ = s.blobs.Delete(ctx, key)
		return models.Image{}, fmt.Errorf("failed to store metadata: %w", err)
	}
	s.images.Set(img)
	slog.Info("Image saved", "id", id, "name", name, "size", meta.Size)

	s.publish(events.AddPayload(img))
	return img, nil
}

func (s *Service) GetAllImages() []models.Image {
	return s.images.GetAll()
}

func (s *Service) GetImage(id string) (models.Image, error) {
	img, ok := s.images.Get(id)
	if !ok {
		return models.Image{}, ErrNotFound
	}
	return img, nil
}

// DeleteImage removes the record, its bytes and its metadata, then
// announces the removal.
func (s *Service) DeleteImage(ctx context.Context, id string) error {
	img, ok := s.images.Delete(id)
	if !ok {
		return ErrNotFound
	}
	if err := s.blobs.Delete(ctx, img.Path); err != nil {
		slog.Error("Failed to delete image bytes", "id", id, "path", img.Path, "err", err)
	}
	if err := s.metadata.Delete(id); err != nil {
		slog.Error("Failed to delete image metadata", "id", id, "err", err)
	}
	slog.Info("Image deleted", "id", id, "name", img.Name)

	s.publish(events.RemovePayload(id))
	return nil
}

// OpenImage streams the stored bytes of id.
func (s *Service) OpenImage(ctx context.Context, id string) (io.ReadCloser, string, error) {
	img, ok := s.images.Get(id)
	if !ok {
		return nil, "", ErrNotFound
	}
	r, err := s.blobs.ReadStream(ctx, img.Path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image %s: %w", id, err)
	}
	return r, r.ContentType(), nil
}

func (s *Service) GetImageMetadata(id string) (models.ImageMetadata, error) {
	if _, ok := s.images.Get(id); !ok {
		return models.ImageMetadata{}, ErrNotFound
	}
	meta, err := s.metadata.Get(id)
	if errors.Is(err, storage.ErrMetadataNotFound) {
		return models.ImageMetadata{}, ErrNotFound
	}
	return meta, err
}

// SetImageMetadata replaces the metadata of an existing image. The id is
// taken from the path, not the body.
func (s *Service) SetImageMetadata(id string, meta models.ImageMetadata) (models.ImageMetadata, error) {
	if _, ok := s.images.Get(id); !ok {
		return models.ImageMetadata{}, ErrNotFound
	}
	meta.ID = id
	if err := s.metadata.Set(meta); err != nil {
		return models.ImageMetadata{}, fmt.Errorf("failed to store metadata: %w", err)
	}
	return meta, nil
}

// LoadExisting rebuilds the record list from the blob store at startup.
// Objects not named <id>_<name> are skipped.
func (s *Service) LoadExisting(ctx context.Context) (int, error) {
	objects, err := s.blobs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored images: %w", err)
	}

	loaded := 0
	for _, obj := range objects {
		id, name, ok := strings.Cut(path.Base(obj.Key), "_")
		if !ok || id == "" || name == "" {
			slog.Warn("Skipping unrecognized object", "key", obj.Key)
			continue
		}
		s.images.Set(models.Image{ID: id, Name: name, Path: obj.Key})

		if _, err := s.metadata.Get(id); errors.Is(err, storage.ErrMetadataNotFound) {
			meta := models.ImageMetadata{ID: id, Name: name, Size: obj.Size}
			if attr, err := s.blobs.Attributes(ctx, obj.Key); err == nil {
				meta.MimeType = attr.ContentType
			}
			if err := s.metadata.Set(meta); err != nil {
				slog.Warn("Unable to restore metadata", "id", id, "err", err)
			}
		}
		loaded++
	}
	slog.Info("Loaded existing images", "count", loaded)
	return loaded, nil
}

func (s *Service) publish(payload []byte, err error) {
	if err != nil {
		slog.Error("Unable to encode image event", "err", err)
		return
	}
	if s.events != nil {
		s.events.Publish(payload)
	}
}

func cleanFilename(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}

func detectMimeType(contentType string, data []byte) string {
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	return http.DetectContentType(data)
}

func getImageDimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
