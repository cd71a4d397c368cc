package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/document-verifier/internal/logger"
	"github.com/menta2k/document-verifier/pkg/client"
	"github.com/menta2k/document-verifier/pkg/encoder"
	"github.com/menta2k/document-verifier/pkg/request"
	"github.com/menta2k/document-verifier/pkg/response"
	"github.com/menta2k/document-verifier/pkg/types"
)

// State is a step of a single analysis
type State int

const (
	NotStarted State = iota
	RequestSent
	ResponseReceived
	Parsed
	ParseFailed
	// Failed ends an analysis that never produced response text
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case RequestSent:
		return "request_sent"
	case ResponseReceived:
		return "response_received"
	case Parsed:
		return "parsed"
	case ParseFailed:
		return "parse_failed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition records one state change of an analysis
type Transition struct {
	From State
	To   State
	Err  error
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithEncoder replaces the default PNG encoder
func WithEncoder(e *encoder.Encoder) Option {
	return func(a *Analyzer) {
		a.encoder = e
	}
}

// WithLogger replaces the package logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) {
		a.log = l
	}
}

// WithObserver registers a callback invoked on every state transition
func WithObserver(fn func(Transition)) Option {
	return func(a *Analyzer) {
		a.observer = fn
	}
}

// Analyzer runs the encode, request, parse pipeline against a reasoning service.
// It holds no mutable state and may be shared by concurrent callers.
type Analyzer struct {
	client   client.VisionClient
	encoder  *encoder.Encoder
	log      logrus.FieldLogger
	observer func(Transition)
}

// New creates an Analyzer using the given client
func New(vc client.VisionClient, opts ...Option) *Analyzer {
	a := &Analyzer{
		client:  vc,
		encoder: encoder.New(),
		log:     logger.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type completion struct {
	text string
	err  error
}

// Analyze classifies the document in img and assesses its validity.
// Exactly one request is sent. Errors are *types.InvalidImageError,
// *types.ServiceError or *types.MalformedResponseError.
func (a *Analyzer) Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	r := &run{
		analyzer: a,
		state:    NotStarted,
		start:    time.Now(),
		log:      a.log.WithField("backend", a.client.Name()),
	}

	payload, err := a.encoder.Encode(img)
	if err != nil {
		return nil, r.fail(Failed, err)
	}
	req := request.Build(payload)

	if err := ctx.Err(); err != nil {
		return nil, r.fail(Failed, a.abandoned(err))
	}

	r.to(RequestSent)
	done := make(chan completion, 1)
	go func() {
		text, err := a.client.Complete(ctx, req)
		done <- completion{text: text, err: err}
	}()

	var c completion
	select {
	case <-ctx.Done():
		// the in-flight call is abandoned, whatever it returns is dropped
		return nil, r.fail(Failed, a.abandoned(ctx.Err()))
	case c = <-done:
	}

	if c.err != nil {
		var malformed *types.MalformedResponseError
		if errors.As(c.err, &malformed) {
			r.to(ResponseReceived)
			return nil, r.fail(ParseFailed, c.err)
		}
		return nil, r.fail(Failed, a.serviceError(c.err))
	}
	r.to(ResponseReceived)

	result, err := response.Parse(c.text)
	if err != nil {
		return nil, r.fail(ParseFailed, err)
	}
	r.to(Parsed)

	r.log.WithFields(logrus.Fields{
		"document_type":    result.DocumentType.String(),
		"confidence_score": result.Validity.ConfidenceScore,
		"appears_genuine":  result.Validity.AppearsGenuine,
		"elapsed_ms":       time.Since(r.start).Milliseconds(),
	}).Info("document analysis completed")

	return result, nil
}

func (a *Analyzer) abandoned(err error) error {
	return types.NewServiceError(a.client.Name(), 0, fmt.Errorf("analysis abandoned: %w", err))
}

// serviceError keeps typed errors and wraps anything else as a ServiceError
func (a *Analyzer) serviceError(err error) error {
	var svcErr *types.ServiceError
	var invalid *types.InvalidImageError
	if errors.As(err, &svcErr) || errors.As(err, &invalid) {
		return err
	}
	return types.NewServiceError(a.client.Name(), 0, err)
}

// run tracks the state of one Analyze call
type run struct {
	analyzer *Analyzer
	state    State
	start    time.Time
	log      logrus.FieldLogger
}

func (r *run) to(next State) {
	r.transition(next, nil)
}

func (r *run) fail(next State, err error) error {
	r.transition(next, err)

	entry := r.log.WithError(err).WithFields(logrus.Fields{
		"state":      next.String(),
		"elapsed_ms": time.Since(r.start).Milliseconds(),
	})

	var malformed *types.MalformedResponseError
	if errors.As(err, &malformed) {
		entry.WithField("fingerprint", malformed.Fingerprint).Warn("reasoning service returned a malformed response")
	} else {
		entry.Error("document analysis failed")
	}
	return err
}

func (r *run) transition(next State, err error) {
	t := Transition{From: r.state, To: next, Err: err}
	r.state = next
	r.log.WithFields(logrus.Fields{
		"from": t.From.String(),
		"to":   t.To.String(),
	}).Debug("analysis state changed")
	if r.analyzer.observer != nil {
		r.analyzer.observer(t)
	}
}
