package image

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/manash/imgstudio/pkg/models"
)

// Sniff detects the media type from content. Unknown content yields
// "application/octet-stream", which is never accepted.
func Sniff(data []byte) models.MediaType {
	return models.ParseMediaType(mimetype.Detect(data).String())
}

// ResolveMediaType prefers the declared type and falls back to sniffing when
// none was declared or the declaration is generic.
func ResolveMediaType(declared string, data []byte) models.MediaType {
	mt := models.ParseMediaType(declared)
	switch mt {
	case "", "application/octet-stream":
		return Sniff(data)
	}
	return mt
}
