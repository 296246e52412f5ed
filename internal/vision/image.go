package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// maxImageBytes bounds a single banner download.
const maxImageBytes = 20 << 20

// Image formats accepted by the vision models.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// Image is a downloaded banner ready to send to a model.
type Image struct {
	Name   string
	Data   []byte
	Format string
	Width  int
	Height int
}

// MIMEType returns the media type for the image format.
func (i Image) MIMEType() string {
	return "image/" + i.Format
}

// Fetcher downloads images from presigned URLs.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the image at url and detects its format.
func (f *Fetcher) Fetch(ctx context.Context, name, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, fmt.Errorf("image download %s: create request: %w", name, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("image download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("image download %s: unexpected status %d", name, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("image download %s: read body: %w", name, err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("image download %s: empty payload", name)
	}
	if len(data) > maxImageBytes {
		return Image{}, fmt.Errorf("image download %s: exceeds %d bytes", name, maxImageBytes)
	}

	img := Image{
		Name:   name,
		Data:   data,
		Format: DetectFormat(resp.Header.Get("Content-Type"), data),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	} else {
		log.Debug().Err(err).Str("image", name).Msg("Could not read image dimensions")
	}

	log.Debug().
		Str("image", name).
		Str("format", img.Format).
		Int("bytes", len(data)).
		Int("width", img.Width).
		Int("height", img.Height).
		Msg("Image downloaded")
	return img, nil
}

// DetectFormat picks png, jpeg or webp from the Content-Type header, then
// from magic bytes. Unknown input defaults to png.
func DetectFormat(contentType string, data []byte) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png"):
		return FormatPNG
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return FormatJPEG
	case strings.Contains(ct, "webp"):
		return FormatWebP
	}

	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	}
	return FormatPNG
}
