package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Media types produced by the encoder
const (
	MediaTypePNG  = "image/png"
	MediaTypeWebP = "image/webp"
)

// ImagePayload is a base64 encoded image ready to be embedded in a request body
type ImagePayload struct {
	MediaType string
	Data      string
}

// AnalysisRequest pairs the fixed instructions with exactly one image
type AnalysisRequest struct {
	Instructions string
	Image        ImagePayload
}

// DocumentType is the closed set of document kinds the verifier understands
type DocumentType int

const (
	Unsupported DocumentType = iota
	Passport
	DriversLicense
)

// Wire literals used by the reasoning service
const (
	literalPassport       = "passport"
	literalDriversLicense = "driver's license"
	literalUnsupported    = "unsupported"
)

// String returns the canonical display name
func (t DocumentType) String() string {
	switch t {
	case Passport:
		return "Passport"
	case DriversLicense:
		return "DriversLicense"
	case Unsupported:
		return "Unsupported"
	default:
		return fmt.Sprintf("DocumentType(%d)", int(t))
	}
}

// Literal returns the wire literal used in the response schema
func (t DocumentType) Literal() string {
	switch t {
	case Passport:
		return literalPassport
	case DriversLicense:
		return literalDriversLicense
	default:
		return literalUnsupported
	}
}

// ParseDocumentType maps a wire literal to a DocumentType.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseDocumentType(s string) (DocumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case literalPassport:
		return Passport, true
	case literalDriversLicense:
		return DriversLicense, true
	case literalUnsupported:
		return Unsupported, true
	}
	return Unsupported, false
}

// MarshalJSON emits the wire literal
func (t DocumentType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Literal())
}

// UnmarshalJSON accepts any casing of the wire literals
func (t *DocumentType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dt, ok := ParseDocumentType(s)
	if !ok {
		return fmt.Errorf("unknown document type %q", s)
	}
	*t = dt
	return nil
}

// ExtractedInfo holds the fields read off the document.
// Values are kept verbatim as returned by the reasoning service.
type ExtractedInfo struct {
	FullName       string            `json:"full_name"`
	DateOfBirth    string            `json:"date_of_birth"`
	DocumentNumber string            `json:"document_number"`
	IssueDate      string            `json:"issue_date"`
	ExpiryDate     string            `json:"expiry_date"`
	AdditionalInfo map[string]string `json:"additional_info"`
}

// ValidityAssessment is the genuineness verdict
type ValidityAssessment struct {
	AppearsGenuine  bool     `json:"appears_genuine"`
	ConfidenceScore int      `json:"confidence_score"`
	Discrepancies   []string `json:"discrepancies"`
	AnalysisSummary string   `json:"analysis_summary"`
}

// AnalysisResult is the outcome of one successful analysis.
// ExtractedInfo is nil when DocumentType is Unsupported.
type AnalysisResult struct {
	DocumentType  DocumentType       `json:"document_type"`
	ExtractedInfo *ExtractedInfo     `json:"extracted_info,omitempty"`
	Validity      ValidityAssessment `json:"document_validity"`
}

// IsSupported reports whether the document was recognised as a passport or driver's license
func (r *AnalysisResult) IsSupported() bool {
	return r.DocumentType != Unsupported
}
