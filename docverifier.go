// Package docverifier classifies identity documents and assesses whether they look genuine.
//
// A document image is encoded, sent with fixed instructions to a vision
// reasoning service in a single request, and the reply is checked against a
// strict schema. The outcome is either an AnalysisResult or one of three
// typed errors: InvalidImageError, ServiceError or MalformedResponseError.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		docverifier "github.com/menta2k/document-verifier"
//		"github.com/menta2k/document-verifier/pkg/client"
//		"github.com/menta2k/document-verifier/pkg/report"
//	)
//
//	func main() {
//		v, err := docverifier.NewFromConfig(client.Config{
//			Backend: "anthropic",
//			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
//		}, docverifier.Options{})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := v.AnalyzeFile(context.Background(), "passport.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if err := report.WriteText(os.Stdout, result); err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(result.Validity.ConfidenceScore)
//	}
//
// The package consists of these components:
//
// 1. Processing (pkg/processing): loads and decodes jpg, png and webp images
// 2. Encoder (pkg/encoder): lossless PNG or WebP base64 payloads
// 3. Request (pkg/request): the fixed analysis instructions
// 4. Clients (pkg/anthropic, pkg/ollama, pkg/llamacpp): reasoning-service backends
// 5. Response (pkg/response): strict response validation
// 6. Analyzer (pkg/analyzer): the single-call pipeline
// 7. Retry policy (pkg/retrypolicy): optional caller-side retries
//
// An analysis never retries on its own and holds no state between calls, so a
// Verifier may be shared by concurrent goroutines.
package docverifier

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/document-verifier/pkg/analyzer"
	"github.com/menta2k/document-verifier/pkg/client"
	"github.com/menta2k/document-verifier/pkg/encoder"
	"github.com/menta2k/document-verifier/pkg/processing"
	"github.com/menta2k/document-verifier/pkg/retrypolicy"
	"github.com/menta2k/document-verifier/pkg/types"
)

// Version of the document verifier library
const Version = "1.0.0"

// Options tunes a Verifier. The zero value gives full-size PNG payloads and no retries.
type Options struct {
	Encoder    encoder.Config
	Processing processing.Config
	// Retry wraps analysis in a retry policy when MaxAttempts is above one
	Retry    retrypolicy.Config
	Logger   logrus.FieldLogger
	Observer func(analyzer.Transition)
}

// Verifier provides a high-level interface for loading and analyzing document images
type Verifier struct {
	backend   string
	processor *processing.Processor
	analyzer  retrypolicy.Analyzer
}

// New creates a Verifier with default options
func New(vc client.VisionClient) *Verifier {
	return NewWithOptions(vc, Options{})
}

// NewWithOptions creates a Verifier with custom options
func NewWithOptions(vc client.VisionClient, opts Options) *Verifier {
	analyzerOpts := []analyzer.Option{
		analyzer.WithEncoder(encoder.NewWithConfig(opts.Encoder)),
	}
	if opts.Logger != nil {
		analyzerOpts = append(analyzerOpts, analyzer.WithLogger(opts.Logger))
	}
	if opts.Observer != nil {
		analyzerOpts = append(analyzerOpts, analyzer.WithObserver(opts.Observer))
	}

	var a retrypolicy.Analyzer = analyzer.New(vc, analyzerOpts...)
	if opts.Retry.MaxAttempts > 1 {
		policy := retrypolicy.New(a, opts.Retry)
		if opts.Logger != nil {
			policy.WithLogger(opts.Logger)
		}
		a = policy
	}

	return &Verifier{
		backend:   vc.Name(),
		processor: processing.NewProcessorWithConfig(opts.Processing),
		analyzer:  a,
	}
}

// NewFromConfig creates the configured backend client and a Verifier around it
func NewFromConfig(cfg client.Config, opts Options) (*Verifier, error) {
	vc, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(vc, opts), nil
}

// Backend returns the name of the reasoning-service backend
func (v *Verifier) Backend() string {
	return v.backend
}

// LoadImage loads an image from a file path or an http(s) URL
func (v *Verifier) LoadImage(ctx context.Context, source string) (image.Image, error) {
	return v.processor.LoadImageSmart(ctx, source)
}

// LoadImageFromReader loads an image from an io.Reader
func (v *Verifier) LoadImageFromReader(r io.Reader) (image.Image, error) {
	return v.processor.LoadImageFromReader(r)
}

// Analyze classifies the document in img and assesses its validity
func (v *Verifier) Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	return v.analyzer.Analyze(ctx, img)
}

// AnalyzeFile loads source and analyzes it
func (v *Verifier) AnalyzeFile(ctx context.Context, source string) (*types.AnalysisResult, error) {
	img, err := v.LoadImage(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", source, err)
	}
	return v.Analyze(ctx, img)
}
