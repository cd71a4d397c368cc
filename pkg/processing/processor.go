package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/document-verifier/pkg/types"
)

// DefaultMaxBytes limits how much image data is read from a URL or reader
const DefaultMaxBytes = 20 << 20

// SupportedFormats lists the accepted upload formats
var SupportedFormats = []string{"jpg", "jpeg", "png", "webp"}

// Config holds configuration for image loading
type Config struct {
	MinImageSize int
	MaxBytes     int64
	Timeout      time.Duration
}

// Processor loads and checks document images
type Processor struct {
	config Config
	client *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return NewProcessorWithConfig(Config{})
}

// NewProcessorWithConfig creates a processor with custom limits. Zero fields take defaults.
func NewProcessorWithConfig(config Config) *Processor {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Processor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// LoadImageFromURL downloads and loads an image from a URL. The download is
// abandoned when ctx is done.
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Document-Verifier/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, types.NewInvalidImageError(fmt.Sprintf("URL does not point to an image (Content-Type: %s)", contentType), nil)
	}

	return p.LoadImageFromReader(resp.Body)
}

// LoadImage loads an image from a file path
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if !IsSupportedFile(path) {
		return nil, types.NewInvalidImageError(fmt.Sprintf("unsupported file extension: %s", filepath.Ext(path)), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	return p.LoadImageFromReader(f)
}

// LoadImageFromReader reads and decodes an image, up to the configured byte limit
func (p *Processor) LoadImageFromReader(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > p.config.MaxBytes {
		return nil, types.NewInvalidImageError(fmt.Sprintf("image larger than %d bytes", p.config.MaxBytes), nil)
	}
	return p.DecodeImage(data)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// DecodeImage decodes jpg, png or webp data and applies EXIF orientation
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, types.NewInvalidImageError("empty image data", nil)
	}

	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil && !isSupportedFormat(format) {
		return nil, types.NewInvalidImageError(fmt.Sprintf("unsupported image format: %s", format), nil)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		// some lossless or animated webp files are only handled by libwebp
		webpImg, webpErr := webp.Decode(bytes.NewReader(data))
		if webpErr != nil {
			return nil, types.NewInvalidImageError("unknown or unsupported image format", err)
		}
		img = webpImg
	}

	if err := p.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// ValidateImage checks if an image meets minimum requirements
func (p *Processor) ValidateImage(img image.Image) error {
	if img == nil {
		return types.NewInvalidImageError("nil image", nil)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return types.NewInvalidImageError("image has no pixels", nil)
	}
	if bounds.Dx() < p.config.MinImageSize || bounds.Dy() < p.config.MinImageSize {
		return types.NewInvalidImageError(fmt.Sprintf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), p.config.MinImageSize), nil)
	}
	return nil
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// GetImageInfo returns basic information about an image
func GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// IsSupportedFile reports whether path has one of the accepted image extensions
func IsSupportedFile(path string) bool {
	return isSupportedFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

func isSupportedFormat(format string) bool {
	for _, supported := range SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
