package models

import (
	"bytes"
	"mime"
	"slices"
	"strings"
)

// MediaType is the declared type of an encoded image payload, e.g. "image/png".
type MediaType string

const (
	MediaPNG  MediaType = "image/png"
	MediaJPEG MediaType = "image/jpeg"
	MediaWebP MediaType = "image/webp"
)

// AcceptedMediaTypes is the set of types an upload may carry.
func AcceptedMediaTypes() []MediaType {
	return []MediaType{MediaPNG, MediaJPEG, MediaWebP}
}

// ParseMediaType normalizes a Content-Type style value. Parameters are dropped
// and the legacy "image/jpg" spelling maps to image/jpeg. The result is not
// checked against the accepted set.
func ParseMediaType(s string) MediaType {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(s); err == nil {
		s = parsed
	}
	s = strings.ToLower(s)
	if s == "image/jpg" || s == "image/pjpeg" {
		s = string(MediaJPEG)
	}
	return MediaType(s)
}

func (m MediaType) IsAccepted() bool {
	return slices.Contains(AcceptedMediaTypes(), m)
}

func (m MediaType) String() string {
	return string(m)
}

// Format maps an accepted media type to its output format.
func (m MediaType) Format() (OutputFormat, bool) {
	switch m {
	case MediaPNG:
		return FormatPNG, true
	case MediaJPEG:
		return FormatJPEG, true
	case MediaWebP:
		return FormatWebP, true
	default:
		return "", false
	}
}

// ImageVersion is one immutable snapshot of encoded image bytes. The zero
// value means "no image".
type ImageVersion struct {
	data      []byte
	mediaType MediaType
}

// NewImageVersion copies data so the caller may reuse its buffer.
func NewImageVersion(data []byte, mediaType MediaType) ImageVersion {
	return ImageVersion{
		data:      bytes.Clone(data),
		mediaType: mediaType,
	}
}

// Bytes returns a copy of the payload.
func (v ImageVersion) Bytes() []byte {
	return bytes.Clone(v.data)
}

// Reader reads the payload without copying it.
func (v ImageVersion) Reader() *bytes.Reader {
	return bytes.NewReader(v.data)
}

func (v ImageVersion) Len() int {
	return len(v.data)
}

func (v ImageVersion) MediaType() MediaType {
	return v.mediaType
}

func (v ImageVersion) IsZero() bool {
	return len(v.data) == 0 && v.mediaType == ""
}

func (v ImageVersion) Equal(other ImageVersion) bool {
	return v.mediaType == other.mediaType && bytes.Equal(v.data, other.data)
}
