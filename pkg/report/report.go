// Package report renders analysis results for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/menta2k/document-verifier/pkg/types"
)

const unsupportedMessage = "Unsupported document type. We only process passports and driver's licenses."

// Label turns a snake_case field name into a title-cased label
func Label(key string) string {
	return title(strings.ReplaceAll(key, "_", " "))
}

// title builds a Caser per call; Casers are not safe for concurrent use
func title(s string) string {
	return cases.Title(language.English).String(s)
}

// WriteText writes a human-readable report of result
func WriteText(w io.Writer, result *types.AnalysisResult) error {
	tw := &textWriter{w: w}

	if !result.IsSupported() {
		tw.line(unsupportedMessage)
		tw.line(result.Validity.AnalysisSummary)
		return tw.err
	}

	tw.heading("Document Type: " + title(result.DocumentType.Literal()))

	if info := result.ExtractedInfo; info != nil {
		tw.heading("Extracted Information")
		tw.field("full_name", info.FullName)
		tw.field("date_of_birth", info.DateOfBirth)
		tw.field("document_number", info.DocumentNumber)
		tw.field("issue_date", info.IssueDate)
		tw.field("expiry_date", info.ExpiryDate)

		if len(info.AdditionalInfo) > 0 {
			tw.heading("Additional Information")
			keys := make([]string, 0, len(info.AdditionalInfo))
			for k := range info.AdditionalInfo {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				tw.field(k, info.AdditionalInfo[k])
			}
		}
	}

	validity := result.Validity
	tw.heading("Document Validity")
	tw.line("Appears Genuine: " + yesNo(validity.AppearsGenuine))
	tw.line(fmt.Sprintf("Confidence Score: %d%%", validity.ConfidenceScore))

	if len(validity.Discrepancies) > 0 {
		tw.line("Discrepancies Detected:")
		for _, d := range validity.Discrepancies {
			tw.line("- " + d)
		}
	}

	tw.line("Analysis Summary:")
	tw.line(validity.AnalysisSummary)
	return tw.err
}

// WriteJSON writes result as indented JSON using the wire field names
func WriteJSON(w io.Writer, result *types.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// Write renders result in the named format ("text" or "json")
func Write(w io.Writer, format string, result *types.AnalysisResult) error {
	switch strings.ToLower(format) {
	case "", "text":
		return WriteText(w, result)
	case "json":
		return WriteJSON(w, result)
	default:
		return fmt.Errorf("unknown report format: %s (use text or json)", format)
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// textWriter remembers the first write error
type textWriter struct {
	w       io.Writer
	err     error
	started bool
}

func (t *textWriter) heading(s string) {
	if t.started {
		t.line("")
	}
	t.line(s)
}

func (t *textWriter) field(key, value string) {
	t.line(Label(key) + ": " + value)
}

func (t *textWriter) line(s string) {
	if t.err != nil {
		return
	}
	t.started = true
	_, t.err = fmt.Fprintln(t.w, s)
}
