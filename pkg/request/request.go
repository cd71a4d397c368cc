package request

import "github.com/menta2k/document-verifier/pkg/types"

// Instructions is the fixed extraction and validation contract sent with every image
const Instructions = `You are an identity document verification assistant.

Analyze the attached image and determine if it is a passport or a driver's license.
If it is neither, it is an unsupported document type.

For a passport, extract: full name, date of birth, passport number, issue date, expiry date, issuing country.
For a driver's license, extract: full name, date of birth, license number, issue date, expiry date, address.

Then verify whether the document appears genuine and list any potential discrepancies or red flags.

Return JSON only:
{
  "document_type": "passport" | "driver's license" | "unsupported",
  "extracted_info": {
    "full_name": "string",
    "date_of_birth": "string",
    "document_number": "string",
    "issue_date": "string",
    "expiry_date": "string",
    "additional_info": {"key": "string"}
  },
  "document_validity": {
    "appears_genuine": true,
    "confidence_score": 0,
    "discrepancies": ["string"],
    "analysis_summary": "string"
  }
}

HARD RULES
- "document_number" holds the passport number or the license number.
- Put the issuing country (passport) or the address (driver's license) in "additional_info".
- Copy values exactly as printed. Use "" for a field that cannot be read.
- "confidence_score" is an integer from 0 to 100.
- "discrepancies" is an array of short strings, [] if there are none.
- If the document type is unsupported, return only "document_type" and
  "document_validity" with a brief explanation in "analysis_summary".
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Build combines the fixed instructions with one encoded image
func Build(payload types.ImagePayload) types.AnalysisRequest {
	return types.AnalysisRequest{
		Instructions: Instructions,
		Image:        payload,
	}
}
