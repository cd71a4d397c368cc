package transport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/document-verifier/internal/logger"
	"github.com/menta2k/document-verifier/pkg/processing"
	"github.com/menta2k/document-verifier/pkg/types"
)

// multipartOverhead is allowed on top of the image size for form boundaries and headers
const multipartOverhead = 1 << 20

// DocumentAnalyzer runs one analysis of a decoded image
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error)
}

// ImageDecoder turns uploaded bytes into an image
type ImageDecoder interface {
	LoadImageFromReader(r io.Reader) (image.Image, error)
}

// Config holds HTTP handler settings
type Config struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	Backend        string
	Version        string
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewHandler builds the gin router serving document analysis
func NewHandler(a DocumentAnalyzer, dec ImageDecoder, cfg Config) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = processing.DefaultMaxBytes
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxUploadBytes+multipartOverhead),
	)

	r.GET("/health", healthCheck(cfg))
	r.POST("/analyze", analyzeDocument(a, dec, cfg))

	return r
}

func analyzeDocument(a DocumentAnalyzer, dec ImageDecoder, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx := c.Request.Context()
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
		}

		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, http.StatusRequestEntityTooLarge, "upload too large", err)
				return
			}
			respondError(c, http.StatusBadRequest, "multipart field \"file\" is required", err)
			return
		}

		if !processing.IsSupportedFile(fh.Filename) {
			respondError(c, http.StatusBadRequest, "unsupported file type",
				types.NewInvalidImageError(fmt.Sprintf("%s is not one of %v", fh.Filename, processing.SupportedFormats), nil))
			return
		}
		if fh.Size > cfg.MaxUploadBytes {
			respondError(c, http.StatusRequestEntityTooLarge, "upload too large",
				fmt.Errorf("%d bytes exceeds limit of %d", fh.Size, cfg.MaxUploadBytes))
			return
		}

		f, err := fh.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "failed to read upload", err)
			return
		}
		defer f.Close()

		img, err := dec.LoadImageFromReader(f)
		if err != nil {
			respondError(c, determineStatusCode(err), "failed to decode image", err)
			return
		}

		result, err := a.Analyze(ctx, img)
		if err != nil {
			var svcErr *types.ServiceError
			if errors.As(err, &svcErr) && svcErr.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(svcErr.RetryAfter.Seconds())))
			}
			respondError(c, determineStatusCode(err), "document analysis failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id":         requestIDFrom(c),
			"filename":           fh.Filename,
			"document_type":      result.DocumentType.String(),
			"confidence_score":   result.Validity.ConfidenceScore,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Document analysis completed successfully")

		c.JSON(http.StatusOK, result)
	}
}

func healthCheck(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "available",
			"backend": cfg.Backend,
			"version": cfg.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// determineStatusCode maps analysis errors onto HTTP statuses
func determineStatusCode(err error) int {
	var (
		invalid   *types.InvalidImageError
		malformed *types.MalformedResponseError
		svcErr    *types.ServiceError
	)

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusTooManyRequests:
		return http.StatusServiceUnavailable
	case errors.As(err, &svcErr), errors.As(err, &malformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  requestIDFrom(c),
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:     http.StatusText(code),
		Kind:      types.Kind(err),
		Message:   fmt.Sprintf("%s: %v", message, err),
		RequestID: requestIDFrom(c),
	})
}
