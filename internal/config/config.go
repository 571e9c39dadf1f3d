// Package config loads gallery settings from defaults, an optional TOML
// file and GALLERY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lehigh-university-libraries/gallery/internal/carousel"
	"github.com/lehigh-university-libraries/gallery/internal/engine"
)

const (
	DefaultPath = "gallery.toml"

	EnvServerURL   = "GALLERY_SERVER_URL"
	EnvFrames      = "GALLERY_FRAMES"
	EnvReconcile   = "GALLERY_RECONCILE"
	EnvAddr        = "GALLERY_ADDR"
	EnvDataDir     = "GALLERY_DATA_DIR"
	EnvBucketURL   = "GALLERY_BUCKET_URL"
	EnvMetadataDir = "GALLERY_METADATA_DIR"
)

type ClientConfig struct {
	ServerURL    string
	Frames       int
	TickInterval time.Duration
	Reconcile    engine.Policy
	Reconnect    bool
}

type ServerConfig struct {
	Addr           string
	DataDir        string
	BucketURL      string
	MetadataDir    string
	CORSOrigins    []string
	MaxUploadBytes int64
	KeepAlive      time.Duration
}

type Config struct {
	Client ClientConfig
	Server ServerConfig
}

func Default() Config {
	return Config{
		Client: ClientConfig{
			ServerURL:    "http://localhost:8080",
			Frames:       carousel.DefaultSlots,
			TickInterval: carousel.DefaultInterval,
			Reconcile:    engine.PolicyKeep,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			DataDir:        "data",
			MaxUploadBytes: 10 * 1024 * 1024,
			KeepAlive:      15 * time.Second,
		},
	}
}

// MetadataPath is where the metadata database lives.
func (s ServerConfig) MetadataPath() string {
	if s.MetadataDir != "" {
		return s.MetadataDir
	}
	return filepath.Join(s.DataDir, "metadata")
}

type fileConfig struct {
	Client struct {
		ServerURL    string `toml:"server_url"`
		Frames       int    `toml:"frames"`
		TickInterval string `toml:"tick_interval"`
		Reconcile    string `toml:"reconcile"`
		Reconnect    bool   `toml:"reconnect"`
	} `toml:"client"`
	Server struct {
		Addr           string   `toml:"addr"`
		DataDir        string   `toml:"data_dir"`
		BucketURL      string   `toml:"bucket_url"`
		MetadataDir    string   `toml:"metadata_dir"`
		CORSOrigins    []string `toml:"cors_origins"`
		MaxUploadBytes int64    `toml:"max_upload_bytes"`
		KeepAlive      string   `toml:"keepalive"`
	} `toml:"server"`
}

// Load returns the defaults overlaid with path and the environment. A
// missing file at DefaultPath is not an error; any other missing path is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %s", path, undecoded[0])
	}

	if meta.IsDefined("client", "server_url") {
		c.Client.ServerURL = strings.TrimSpace(raw.Client.ServerURL)
	}
	if meta.IsDefined("client", "frames") {
		c.Client.Frames = raw.Client.Frames
	}
	if meta.IsDefined("client", "tick_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Client.TickInterval))
		if err != nil {
			return fmt.Errorf("parse tick_interval: %w", err)
		}
		c.Client.TickInterval = d
	}
	if meta.IsDefined("client", "reconcile") {
		c.Client.Reconcile = engine.Policy(strings.TrimSpace(raw.Client.Reconcile))
	}
	if meta.IsDefined("client", "reconnect") {
		c.Client.Reconnect = raw.Client.Reconnect
	}

	if meta.IsDefined("server", "addr") {
		c.Server.Addr = strings.TrimSpace(raw.Server.Addr)
	}
	if meta.IsDefined("server", "data_dir") {
		c.Server.DataDir = strings.TrimSpace(raw.Server.DataDir)
	}
	if meta.IsDefined("server", "bucket_url") {
		c.Server.BucketURL = strings.TrimSpace(raw.Server.BucketURL)
	}
	if meta.IsDefined("server", "metadata_dir") {
		c.Server.MetadataDir = strings.TrimSpace(raw.Server.MetadataDir)
	}
	if meta.IsDefined("server", "cors_origins") {
		c.Server.CORSOrigins = normalizeList(raw.Server.CORSOrigins)
	}
	if meta.IsDefined("server", "max_upload_bytes") {
		c.Server.MaxUploadBytes = raw.Server.MaxUploadBytes
	}
	if meta.IsDefined("server", "keepalive") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Server.KeepAlive))
		if err != nil {
			return fmt.Errorf("parse keepalive: %w", err)
		}
		c.Server.KeepAlive = d
	}
	return nil
}

// ApplyEnv overlays the GALLERY_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvServerURL)); v != "" {
		c.Client.ServerURL = v
	}
	if v := strings.TrimSpace(getenv(EnvFrames)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvFrames, err)
		}
		c.Client.Frames = n
	}
	if v := strings.TrimSpace(getenv(EnvReconcile)); v != "" {
		c.Client.Reconcile = engine.Policy(v)
	}
	if v := strings.TrimSpace(getenv(EnvAddr)); v != "" {
		c.Server.Addr = v
	}
	if v := strings.TrimSpace(getenv(EnvDataDir)); v != "" {
		c.Server.DataDir = v
	}
	if v := strings.TrimSpace(getenv(EnvBucketURL)); v != "" {
		c.Server.BucketURL = v
	}
	if v := strings.TrimSpace(getenv(EnvMetadataDir)); v != "" {
		c.Server.MetadataDir = v
	}
	return nil
}

func (c Config) Validate() error {
	if err := carousel.ValidateSlotCount(c.Client.Frames); err != nil {
		return fmt.Errorf("frames: %w", err)
	}
	if _, err := engine.ParsePolicy(string(c.Client.Reconcile)); err != nil {
		return err
	}
	if c.Client.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0, got %s", c.Client.TickInterval)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be > 0, got %d", c.Server.MaxUploadBytes)
	}
	if c.Server.KeepAlive <= 0 {
		return fmt.Errorf("keepalive must be > 0, got %s", c.Server.KeepAlive)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
