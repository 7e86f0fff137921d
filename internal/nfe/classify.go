// Package nfe parses Brazilian fiscal XML documents (NF-e model 55, NFC-e
// model 65) and resolves their SEFAZ processing status. It handles both
// authorization envelopes (nfeProc) and number-range inutilizations
// (procInutNFe), tolerating the namespace and charset drift found in
// real-world emitter output.
package nfe

import (
	"strings"

	"github.com/notaops/fiscal-cli/internal/model"
)

// statusTable maps SEFAZ cStat codes with a fixed meaning to their type.
var statusTable = map[string]model.DocumentType{
	"100": model.DocTypeAuthorized, // Autorizado o uso da NF-e
	"101": model.DocTypeCancelled,  // Cancelamento homologado
	"135": model.DocTypeCancelled,  // Evento de cancelamento registrado
	"102": model.DocTypeVoided,     // Inutilização homologada
}

// ClassifyStatus maps a SEFAZ status code to a document type. Exact table
// matches win; codes starting with "2" or "3" are rejections; an empty code
// is Unknown; everything else gets an explicit unknown-status label. The
// mapping is total: every input yields exactly one type.
func ClassifyStatus(code string) model.DocumentType {
	if t, ok := statusTable[code]; ok {
		return t
	}
	if strings.HasPrefix(code, "2") || strings.HasPrefix(code, "3") {
		return model.RejectedType(code)
	}
	if code == "" {
		return model.DocTypeUnknown
	}
	return model.UnknownStatusType(code)
}
