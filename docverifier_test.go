package docverifier

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/document-verifier/pkg/analyzer"
	"github.com/menta2k/document-verifier/pkg/client"
	"github.com/menta2k/document-verifier/pkg/retrypolicy"
	"github.com/menta2k/document-verifier/pkg/types"
)

const passportJSON = `{"document_type":"passport","extracted_info":{"full_name":"JANE DOE","date_of_birth":"1990-01-01","document_number":"X1234567","issue_date":"2020-01-01","expiry_date":"2030-01-01","additional_info":{}},"document_validity":{"appears_genuine":true,"confidence_score":92,"discrepancies":[],"analysis_summary":"ok"}}`

type stubClient struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Complete(ctx context.Context, req types.AnalysisRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return passportJSON, nil
}

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 25), uint8(y * 25), 200, 255})
		}
	}
	return img
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestVerifier_EndToEnd(t *testing.T) {
	stub := &stubClient{}
	v := NewWithOptions(stub, Options{Logger: quietLogger()})
	assert.Equal(t, "stub", v.Backend())

	result, err := v.Analyze(context.Background(), createTestImage(10, 10))
	require.NoError(t, err)

	assert.Equal(t, types.Passport, result.DocumentType)
	assert.Equal(t, "JANE DOE", result.ExtractedInfo.FullName)
	assert.True(t, result.Validity.AppearsGenuine)
	assert.Equal(t, 92, result.Validity.ConfidenceScore)
	assert.Empty(t, result.Validity.Discrepancies)
	assert.Equal(t, 1, stub.calls)
}

func TestVerifier_TransportFailure(t *testing.T) {
	stub := &stubClient{errs: []error{errors.New("dial tcp: connection refused")}}
	v := NewWithOptions(stub, Options{Logger: quietLogger()})

	result, err := v.Analyze(context.Background(), createTestImage(10, 10))
	assert.Nil(t, result)
	var svcErr *types.ServiceError
	assert.True(t, errors.As(err, &svcErr))
	assert.Equal(t, 1, stub.calls)
}

func TestVerifier_RetryOption(t *testing.T) {
	stub := &stubClient{errs: []error{types.NewServiceError("stub", 503, errors.New("busy"))}}
	v := NewWithOptions(stub, Options{
		Logger: quietLogger(),
		Retry:  retrypolicy.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})

	result, err := v.Analyze(context.Background(), createTestImage(10, 10))
	require.NoError(t, err)
	assert.Equal(t, 92, result.Validity.ConfidenceScore)
	assert.Equal(t, 2, stub.calls)
}

func TestVerifier_Observer(t *testing.T) {
	var states []analyzer.State
	v := NewWithOptions(&stubClient{}, Options{
		Logger:   quietLogger(),
		Observer: func(tr analyzer.Transition) { states = append(states, tr.To) },
	})

	_, err := v.Analyze(context.Background(), createTestImage(10, 10))
	require.NoError(t, err)
	assert.Equal(t, []analyzer.State{analyzer.RequestSent, analyzer.ResponseReceived, analyzer.Parsed}, states)
}

func TestVerifier_AnalyzeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passport.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, createTestImage(10, 10)))
	require.NoError(t, f.Close())

	stub := &stubClient{}
	v := NewWithOptions(stub, Options{Logger: quietLogger()})

	result, err := v.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "JANE DOE", result.ExtractedInfo.FullName)

	_, err = v.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestVerifier_AnalyzeFileURLHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, createTestImage(10, 10))
	}))
	defer server.Close()

	stub := &stubClient{}
	v := NewWithOptions(stub, Options{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.AnalyzeFile(ctx, server.URL+"/passport.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stub.calls)

	result, err := v.AnalyzeFile(context.Background(), server.URL+"/passport.png")
	require.NoError(t, err)
	assert.Equal(t, "JANE DOE", result.ExtractedInfo.FullName)
}

func TestVerifier_AnthropicOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": passportJSON}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	v, err := NewFromConfig(client.Config{
		Backend: "anthropic",
		APIKey:  "sk-test",
		URL:     server.URL,
	}, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", v.Backend())

	result, err := v.Analyze(context.Background(), createTestImage(10, 10))
	require.NoError(t, err)
	assert.Equal(t, 92, result.Validity.ConfidenceScore)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	_, err := NewFromConfig(client.Config{Backend: "anthropic"}, Options{})
	assert.Error(t, err)
}
