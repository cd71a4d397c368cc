package client

import (
	"context"

	"github.com/menta2k/document-verifier/pkg/types"
)

// VisionClient sends one image plus instructions to a reasoning service and returns its text.
// Implementations hold no per-call state and are safe for concurrent use.
type VisionClient interface {
	Name() string
	Complete(ctx context.Context, req types.AnalysisRequest) (string, error)
}
