package main

import (
	"context"
	"flag"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docverifier "github.com/menta2k/document-verifier"
	"github.com/menta2k/document-verifier/internal/config"
	"github.com/menta2k/document-verifier/internal/logger"
	"github.com/menta2k/document-verifier/pkg/types"
)

const passportJSON = `{"document_type":"passport","extracted_info":{"full_name":"JANE DOE","date_of_birth":"1990-01-01","document_number":"X1234567","issue_date":"2020-01-01","expiry_date":"2030-01-01","additional_info":{}},"document_validity":{"appears_genuine":true,"confidence_score":92,"discrepancies":[],"analysis_summary":"ok"}}`

type stubClient struct{}

func (stubClient) Name() string { return "stub" }

func (stubClient) Complete(ctx context.Context, req types.AnalysisRequest) (string, error) {
	return passportJSON, nil
}

func init() {
	logger.SetOutput(io.Discard)
}

func parseFlags(t *testing.T, args ...string) (*flag.FlagSet, options) {
	t.Helper()
	var opts options
	fs := flag.NewFlagSet("docverify", flag.ContinueOnError)
	registerFlags(fs, &opts)
	require.NoError(t, fs.Parse(args))
	return fs, opts
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Backend.Name = "anthropic"
	cfg.Retry.MaxAttempts = 3

	fs, opts := parseFlags(t, "-backend", "ollama", "-model", "llava", "-retries", "5")
	applyFlags(fs, cfg, opts)

	assert.Equal(t, "ollama", cfg.Backend.Name)
	assert.Equal(t, "llava", cfg.Backend.Model)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestApplyFlags_ZeroRetriesKeepsConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Retry.MaxAttempts = 2

	fs, opts := parseFlags(t, "-retries", "0")
	applyFlags(fs, cfg, opts)

	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 120, 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestAnalyzeDir_SameNameInputsGetSeparateReports(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a/id.png", "b/id.png", "id.png", "id.jpg"} {
		writePNG(t, filepath.Join(in, filepath.FromSlash(name)))
	}

	opts := options{in: in, outDir: out, format: "json", concurrency: 4}
	failed, err := analyzeDir(context.Background(), docverifier.New(stubClient{}), opts)
	require.NoError(t, err)
	// id.jpg holds png bytes; the decoder sniffs content, not the extension
	assert.Equal(t, 0, failed)

	for _, name := range []string{"a/id.png", "b/id.png", "id.png", "id.jpg"} {
		path := filepath.Join(out, filepath.FromSlash(name)+".report.json")
		data, err := os.ReadFile(path)
		require.NoError(t, err, name)
		assert.Contains(t, string(data), "JANE DOE")
	}
}
