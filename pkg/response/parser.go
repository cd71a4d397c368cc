// Package response turns reasoning-service text into a validated AnalysisResult.
//
// The text must be a single JSON object matching the response schema. The only
// tolerated deviation is one enclosing markdown code fence. Anything else that
// does not fit the schema is reported as *types.MalformedResponseError and no
// partial result is returned.
package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/menta2k/document-verifier/pkg/types"
)

const (
	minScore = 0
	maxScore = 100
)

// object is a decoded JSON object whose values are still raw
type object map[string]json.RawMessage

// Parse validates the response text and maps it into an AnalysisResult
func Parse(text string) (*types.AnalysisResult, error) {
	body := stripCodeFence(text)
	if body == "" {
		return nil, types.NewMalformedResponseError(text, "empty response", nil)
	}

	root, err := decodeDocument(body)
	if err != nil {
		return nil, types.NewMalformedResponseError(text, "response is not a single JSON object", err)
	}

	p := &parser{raw: text}
	return p.parse(root)
}

type parser struct {
	raw string
}

func (p *parser) fail(format string, args ...any) error {
	return types.NewMalformedResponseError(p.raw, fmt.Sprintf(format, args...), nil)
}

func (p *parser) failErr(err error, format string, args ...any) error {
	return types.NewMalformedResponseError(p.raw, fmt.Sprintf(format, args...), err)
}

func (p *parser) parse(root object) (*types.AnalysisResult, error) {
	literal, err := p.requireString(root, "document_type", "document_type")
	if err != nil {
		return nil, err
	}
	docType, ok := types.ParseDocumentType(literal)
	if !ok {
		return nil, p.fail("unknown document_type %q", literal)
	}

	validity, err := p.requireObject(root, "document_validity", "document_validity")
	if err != nil {
		return nil, err
	}

	if docType == types.Unsupported {
		summary, err := p.requireString(validity, "analysis_summary", "document_validity.analysis_summary")
		if err != nil {
			return nil, err
		}
		return &types.AnalysisResult{
			DocumentType: types.Unsupported,
			Validity: types.ValidityAssessment{
				Discrepancies:   []string{},
				AnalysisSummary: summary,
			},
		}, nil
	}

	info, err := p.parseExtractedInfo(root)
	if err != nil {
		return nil, err
	}
	assessment, err := p.parseValidity(validity)
	if err != nil {
		return nil, err
	}

	return &types.AnalysisResult{
		DocumentType:  docType,
		ExtractedInfo: info,
		Validity:      *assessment,
	}, nil
}

func (p *parser) parseExtractedInfo(root object) (*types.ExtractedInfo, error) {
	obj, err := p.requireObject(root, "extracted_info", "extracted_info")
	if err != nil {
		return nil, err
	}

	info := &types.ExtractedInfo{AdditionalInfo: map[string]string{}}
	fields := []struct {
		key string
		dst *string
	}{
		{"full_name", &info.FullName},
		{"date_of_birth", &info.DateOfBirth},
		{"document_number", &info.DocumentNumber},
		{"issue_date", &info.IssueDate},
		{"expiry_date", &info.ExpiryDate},
	}
	for _, f := range fields {
		v, err := p.requireString(obj, f.key, "extracted_info."+f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	if raw, ok := obj.present("additional_info"); ok {
		extra := map[string]string{}
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, p.failErr(err, "extracted_info.additional_info must map strings to strings")
		}
		info.AdditionalInfo = extra
	}

	return info, nil
}

func (p *parser) parseValidity(obj object) (*types.ValidityAssessment, error) {
	raw, ok := obj.present("appears_genuine")
	if !ok {
		return nil, p.fail("missing document_validity.appears_genuine")
	}
	var genuine bool
	if err := json.Unmarshal(raw, &genuine); err != nil {
		return nil, p.failErr(err, "document_validity.appears_genuine must be a boolean")
	}

	raw, ok = obj.present("confidence_score")
	if !ok {
		return nil, p.fail("missing document_validity.confidence_score")
	}
	score, err := parseScore(raw)
	if err != nil {
		return nil, p.failErr(err, "invalid document_validity.confidence_score")
	}

	discrepancies := []string{}
	if raw, ok := obj.present("discrepancies"); ok {
		if err := json.Unmarshal(raw, &discrepancies); err != nil {
			return nil, p.failErr(err, "document_validity.discrepancies must be an array of strings")
		}
	}

	summary, err := p.requireString(obj, "analysis_summary", "document_validity.analysis_summary")
	if err != nil {
		return nil, err
	}

	return &types.ValidityAssessment{
		AppearsGenuine:  genuine,
		ConfidenceScore: score,
		Discrepancies:   discrepancies,
		AnalysisSummary: summary,
	}, nil
}

func (p *parser) requireString(obj object, key, path string) (string, error) {
	raw, ok := obj.present(key)
	if !ok {
		return "", p.fail("missing %s", path)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", p.failErr(err, "%s must be a string", path)
	}
	return s, nil
}

func (p *parser) requireObject(obj object, key, path string) (object, error) {
	raw, ok := obj.present(key)
	if !ok {
		return nil, p.fail("missing %s", path)
	}
	var child object
	if err := json.Unmarshal(raw, &child); err != nil {
		return nil, p.failErr(err, "%s must be an object", path)
	}
	return child, nil
}

// present returns the raw value for key unless it is absent or null
func (o object) present(key string) (json.RawMessage, bool) {
	raw, ok := o[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// parseScore accepts a JSON integer, an integral float or a quoted integer within [0,100]
func parseScore(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(raw))
	}

	var score int64
	if i, err := n.Int64(); err == nil {
		score = i
	} else {
		f, ferr := n.Float64()
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("not an integer: %s", n.String())
		}
		if f < math.MinInt32 || f > math.MaxInt32 {
			return 0, fmt.Errorf("out of range [%d,%d]: %s", minScore, maxScore, n.String())
		}
		score = int64(f)
	}

	if score < minScore || score > maxScore {
		return 0, fmt.Errorf("out of range [%d,%d]: %d", minScore, maxScore, score)
	}
	return int(score), nil
}

// decodeDocument decodes exactly one JSON object with nothing after it
func decodeDocument(body string) (object, error) {
	dec := json.NewDecoder(strings.NewReader(body))

	var root object
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("top-level value is null")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return root, nil
}

// stripCodeFence removes surrounding whitespace and one enclosing ``` or ```json fence
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s
	}
	lang := strings.TrimSpace(s[3:nl])
	if lang != "" && !strings.EqualFold(lang, "json") {
		return s
	}

	body := strings.TrimSpace(s[nl+1:])
	if !strings.HasSuffix(body, "```") {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}
