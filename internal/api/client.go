package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/gallery/internal/events"
	"github.com/lehigh-university-libraries/gallery/internal/models"
	"github.com/tmaxmax/go-sse"
)

const (
	imagesPath      = "/api/images"
	eventStreamType = "text/event-stream"
)

var ErrNotFound = errors.New("image not found")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// Client talks to the image service
type Client struct {
	BaseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new image service client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// the push channel stays open indefinitely
		streamClient: &http.Client{},
	}
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	if len(escaped) == 0 {
		return c.BaseURL + imagesPath
	}
	return c.BaseURL + imagesPath + "/" + strings.Join(escaped, "/")
}

// FileURL is where the bytes of image id are served.
func (c *Client) FileURL(id string) string {
	return c.url(id, "file")
}

// ListImages performs the bulk load
func (c *Client) ListImages(ctx context.Context) ([]models.Image, error) {
	var images []models.Image
	if err := c.getJSON(ctx, c.url(), &images); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

func (c *Client) GetImage(ctx context.Context, id string) (models.Image, error) {
	var img models.Image
	if err := c.getJSON(ctx, c.url(id), &img); err != nil {
		return models.Image{}, fmt.Errorf("failed to get image %s: %w", id, err)
	}
	return img, nil
}

func (c *Client) GetMetadata(ctx context.Context, id string) (models.ImageMetadata, error) {
	var meta models.ImageMetadata
	if err := c.getJSON(ctx, c.url(id, "metadata"), &meta); err != nil {
		return models.ImageMetadata{}, fmt.Errorf("failed to get metadata for %s: %w", id, err)
	}
	return meta, nil
}

// DeleteImage asks the server to delete id. Any non-2xx status is a failure.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", id, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("failed to delete image %s: %w", id, err)
	}
	return nil
}

// UploadImage sends r as the multipart "file" field. The collection learns
// about the new image from the push channel, not from this response.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (models.Image, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), pr)
	if err != nil {
		pr.Close()
		return models.Image{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return models.Image{}, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	var img models.Image
	if err := json.NewDecoder(resp.Body).Decode(&img); err != nil {
		return models.Image{}, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return img, nil
}

// Subscribe opens the push channel. The stream is bound to ctx; cancelling
// ctx or closing the subscription ends it.
func (c *Client) Subscribe(ctx context.Context) (events.Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("stream"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", eventStreamType)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open image stream: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to open image stream: %w", err)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, eventStreamType) {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to open image stream: unexpected content type %q", ct)
	}
	next, stop := iter.Pull2(sse.Read(resp.Body, nil))
	return &Stream{body: resp.Body, next: next, stop: stop}, nil
}

// Stream is an open push channel. Next must not be called concurrently;
// Close may be called from any goroutine and unblocks a pending Next.
type Stream struct {
	body      io.ReadCloser
	next      func() (sse.Event, error, bool)
	stop      func()
	closeOnce sync.Once
	closeErr  error
}

// Next returns the data of the next event. Events without data are skipped.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.stop()
			return nil, err
		}
		ev, err, ok := s.next()
		if !ok {
			return nil, io.EOF
		}
		if err != nil {
			s.stop()
			return nil, err
		}
		if ev.Data == "" {
			continue
		}
		return []byte(ev.Data), nil
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, statusErr)
	}
	return statusErr
}
