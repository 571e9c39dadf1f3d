package models

// Image is one gallery record. Identity is the ID field.
type Image struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// ImageMetadata describes the stored bytes of an image
type ImageMetadata struct {
	ID       string `json:"id" msgpack:"id"`
	Name     string `json:"name" msgpack:"name"`
	MimeType string `json:"mimeType" msgpack:"mime_type"`
	Size     int64  `json:"size" msgpack:"size"`
	Width    int    `json:"width,omitempty" msgpack:"width"`
	Height   int    `json:"height,omitempty" msgpack:"height"`
}
