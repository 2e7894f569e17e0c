package library

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// Grid cell bounds for normalized thumbnails (3:4 portrait).
const (
	DefaultThumbWidth  = 240
	DefaultThumbHeight = 320
)

// normalizeThumbnail scales an image down to fit maxW×maxH and re-encodes it as
// JPEG. Payloads that do not decode are returned unchanged.
func normalizeThumbnail(data []byte, contentType string, maxW, maxH uint) ([]byte, string) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, contentType
	}
	b := img.Bounds()
	if uint(b.Dx()) > maxW || uint(b.Dy()) > maxH {
		img = resize.Thumbnail(maxW, maxH, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return data, contentType
	}
	return buf.Bytes(), "image/jpeg"
}
