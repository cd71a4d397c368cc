package encoder

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xwebp "golang.org/x/image/webp"

	"github.com/menta2k/document-verifier/pkg/types"
)

// Format is a lossless raster container
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Config holds configuration for the encoder
type Config struct {
	Format Format
	// MaxDimension caps the long side in pixels before encoding, 0 keeps the original size
	MaxDimension int
}

// Encoder turns decoded images into base64 payloads
type Encoder struct {
	config Config
}

// New creates an Encoder producing full-size PNG payloads
func New() *Encoder {
	return &Encoder{config: Config{Format: FormatPNG}}
}

// NewWithConfig creates an Encoder with custom configuration
func NewWithConfig(config Config) *Encoder {
	if config.Format == "" {
		config.Format = FormatPNG
	}
	return &Encoder{config: config}
}

// ParseFormat maps a format name to a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unsupported encoder format: %s", name)
	}
}

// MediaType returns the media type of payloads produced by this encoder
func (e *Encoder) MediaType() string {
	if e.config.Format == FormatWebP {
		return types.MediaTypeWebP
	}
	return types.MediaTypePNG
}

// Encode serializes img losslessly and base64 encodes the bytes.
// The output is deterministic for identical pixel data.
func (e *Encoder) Encode(img image.Image) (payload types.ImagePayload, err error) {
	if img == nil {
		return types.ImagePayload{}, types.NewInvalidImageError("image is nil", nil)
	}
	// a typed nil image panics on Bounds
	defer func() {
		if r := recover(); r != nil {
			payload = types.ImagePayload{}
			err = types.NewInvalidImageError("image is unreadable", fmt.Errorf("%v", r))
		}
	}()

	b := img.Bounds()
	if b.Empty() {
		return types.ImagePayload{}, types.NewInvalidImageError(fmt.Sprintf("image has no pixels (%dx%d)", b.Dx(), b.Dy()), nil)
	}

	img = e.downscale(img)

	var buf bytes.Buffer
	switch e.config.Format {
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return types.ImagePayload{}, types.NewInvalidImageError("webp encoding failed", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return types.ImagePayload{}, types.NewInvalidImageError("png encoding failed", err)
		}
	}

	return types.ImagePayload{
		MediaType: e.MediaType(),
		Data:      base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (e *Encoder) downscale(img image.Image) image.Image {
	maxDim := e.config.MaxDimension
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// Decode reverses Encode, returning the raster image carried by a payload
func Decode(payload types.ImagePayload) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}

	switch payload.MediaType {
	case types.MediaTypePNG:
		return png.Decode(bytes.NewReader(raw))
	case types.MediaTypeWebP:
		return xwebp.Decode(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("unsupported payload media type: %s", payload.MediaType)
	}
}
