// Package retrypolicy re-runs document analysis on transient failures.
//
// A single analysis never retries on its own. Callers that want retries wrap
// an analyzer in a Policy, which backs off exponentially, honours the
// Retry-After of rate-limited services and gives up on invalid images.
package retrypolicy

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/document-verifier/internal/logger"
	"github.com/menta2k/document-verifier/pkg/types"
)

// Analyzer is anything that runs one document analysis
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error)
}

// Config controls how many attempts are made and how long to wait between them
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps the wait between attempts. A rate limit asking for a
	// longer wait ends the retries.
	MaxDelay time.Duration
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    90 * time.Second,
	}
}

// Policy retries an Analyzer
type Policy struct {
	analyzer Analyzer
	config   Config
	log      logrus.FieldLogger
}

// New wraps a with the retry configuration cfg. Zero fields take defaults.
func New(a Analyzer, cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &Policy{
		analyzer: a,
		config:   cfg,
		log:      logger.Logger,
	}
}

// WithLogger replaces the package logger
func (p *Policy) WithLogger(l logrus.FieldLogger) *Policy {
	p.log = l
	return p
}

// Analyze runs the wrapped analyzer until it succeeds, fails permanently or
// runs out of attempts. The last error is returned unchanged.
func (p *Policy) Analyze(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	var (
		result          *types.AnalysisResult
		lastErr         error
		lastFingerprint string
		attempt         int
	)

	err := retry.Do(ctx, p.backoff(&lastErr), func(ctx context.Context) error {
		attempt++
		res, err := p.analyzer.Analyze(ctx, img)
		if err == nil {
			result = res
			return nil
		}
		lastErr = err

		entry := p.log.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": p.config.MaxAttempts,
		})

		var malErr *types.MalformedResponseError
		if errors.As(err, &malErr) {
			if malErr.Fingerprint == lastFingerprint {
				entry.WithFields(logrus.Fields{
					"fingerprint":       malErr.Fingerprint,
					"contract_mismatch": true,
				}).Warn("reasoning service repeated the same malformed response")
			}
			lastFingerprint = malErr.Fingerprint
		} else {
			lastFingerprint = ""
		}

		if !types.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		entry.Info("analysis attempt failed")
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, abandoned(lastErr, ctxErr)
		}
		return nil, err
	}
	return result, nil
}

// backoff grows exponentially and waits at least as long as a rate-limited service asked
func (p *Policy) backoff(lastErr *error) retry.Backoff {
	b := retry.NewExponential(p.config.BaseDelay)
	b = retry.WithCappedDuration(p.config.MaxDelay, b)
	b = retry.WithMaxRetries(uint64(p.config.MaxAttempts-1), b)

	return retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := b.Next()
		if stop {
			return 0, true
		}
		var svcErr *types.ServiceError
		if errors.As(*lastErr, &svcErr) && svcErr.RetryAfter > next {
			if svcErr.RetryAfter > p.config.MaxDelay {
				return 0, true
			}
			next = svcErr.RetryAfter
		}
		return next, false
	})
}

func abandoned(lastErr, ctxErr error) error {
	provider := "analysis"
	var svcErr *types.ServiceError
	if errors.As(lastErr, &svcErr) {
		provider = svcErr.Provider
	}
	return types.NewServiceError(provider, 0, fmt.Errorf("analysis abandoned: %w", ctxErr))
}
