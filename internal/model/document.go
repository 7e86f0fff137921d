package model

import "strconv"

// DocumentType classifies what a fiscal XML turned out to be once its SEFAZ
// status was resolved. The fixed values below cover the exact-match statuses;
// rejected and unrecognized codes produce parameterized labels via
// RejectedType and UnknownStatusType.
type DocumentType string

const (
	DocTypeAuthorized       DocumentType = "Authorized"
	DocTypeCancelled        DocumentType = "Cancelled"
	DocTypeVoided           DocumentType = "Voided/Inutilized"
	DocTypeUnknown          DocumentType = "Unknown"
	DocTypeNoProtocol       DocumentType = "NFe (no protocol)"
	DocTypeVoidedNoProtocol DocumentType = "Inutilization (no protocol)"
)

// RejectedType labels a document rejected by SEFAZ with the rejection code.
func RejectedType(code string) DocumentType {
	return DocumentType("Rejected (" + code + ")")
}

// UnknownStatusType labels a document whose status code is outside the known
// tables.
func UnknownStatusType(code string) DocumentType {
	return DocumentType("Unknown status (" + code + ")")
}

// Document is one analyzed fiscal XML. Every field except SourceName is
// best-effort: extraction records problems on Errors instead of failing, so
// a Document always comes back for every input file.
type Document struct {
	SourceName   string       `json:"source_name"`
	Type         DocumentType `json:"document_type"`
	StatusCode   string       `json:"status_code,omitempty"`
	StatusReason string       `json:"status_reason,omitempty"`
	AccessKey    string       `json:"access_key,omitempty"`
	Model        string       `json:"model,omitempty"`
	Series       string       `json:"series,omitempty"`
	NumberStart  string       `json:"number_start,omitempty"`
	NumberEnd    string       `json:"number_end,omitempty"`
	IssuedAt     string       `json:"issued_at,omitempty"`
	Copied       bool         `json:"copied"`
	Errors       []string     `json:"errors,omitempty"`
}

// RecordError appends a per-document diagnostic without failing the batch.
func (d *Document) RecordError(msg string) {
	d.Errors = append(d.Errors, msg)
}

// HasErrors reports whether any diagnostic was recorded during extraction or
// copying.
func (d *Document) HasErrors() bool {
	return len(d.Errors) > 0
}

// SequenceNumber returns NumberStart as an integer when it is a plain digit
// string. Signed, fractional, or non-numeric values do not participate in
// sequence analysis or copy selection.
func (d *Document) SequenceNumber() (int, bool) {
	return ParseNumber(d.NumberStart)
}

// ParseNumber converts a digit-only string to an int. Anything else,
// including signs, whitespace, and values too large for an int, is not a
// document number.
func ParseNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
