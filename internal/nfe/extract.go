package nfe

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/notaops/fiscal-cli/internal/model"
)

// protocolBlock mirrors the infProt element of an authorization envelope.
type protocolBlock struct {
	CStat   string `xml:"cStat"`
	XMotivo string `xml:"xMotivo"`
	ChNFe   string `xml:"chNFe"`
}

// voidingBlock mirrors the infInut element of an inutilization document.
// Result blocks carry cStat/xMotivo/dhRecbto; request blocks carry xJust.
type voidingBlock struct {
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
	XJust    string `xml:"xJust"`
	Mod      string `xml:"mod"`
	Serie    string `xml:"serie"`
	NNFIni   string `xml:"nNFIni"`
	NNFFin   string `xml:"nNFFin"`
	DhRecbto string `xml:"dhRecbto"`
}

// identBlock mirrors the ide element inside the NFe payload.
type identBlock struct {
	NNF   string `xml:"nNF"`
	Mod   string `xml:"mod"`
	Serie string `xml:"serie"`
	DhEmi string `xml:"dhEmi"`
}

// voidingEntry pairs an infInut block with the local name of its parent
// element, which distinguishes a SEFAZ result (retInutNFe) from a bare
// request (inutNFe).
type voidingEntry struct {
	parent string
	block  voidingBlock
}

// documentTree is the subset of the XML the analyzer cares about, collected
// in document order. Matching is by local name so namespaced and
// namespace-free emitter variants parse the same way.
type documentTree struct {
	root      string
	protocols []protocolBlock
	ident     *identBlock
	voidings  []voidingEntry
}

// voiding returns the first infInut block under the given parent element.
func (t *documentTree) voiding(parent string) *voidingBlock {
	for i := range t.voidings {
		if strings.EqualFold(t.voidings[i].parent, parent) {
			return &t.voidings[i].block
		}
	}
	return nil
}

// anyVoiding returns the first infInut block regardless of parent, preferring
// a result block when both are present.
func (t *documentTree) anyVoiding() *voidingBlock {
	if v := t.voiding("retInutNFe"); v != nil {
		return v
	}
	if len(t.voidings) > 0 {
		return &t.voidings[0].block
	}
	return nil
}

// Extract parses one fiscal XML into a Document. It never fails: decode,
// parse, and structural problems are recorded on the returned document's
// Errors and leave the affected fields empty. The zero status classification
// is Unknown.
func Extract(name string, content []byte) model.Document {
	doc := model.Document{SourceName: name, Type: model.DocTypeUnknown}

	text, fellBack, err := decodeText(content)
	if err != nil {
		doc.RecordError("unreadable content: " + err.Error())
		return doc
	}
	if fellBack {
		doc.RecordError("decoded with ISO-8859-1 fallback")
	}

	tree, err := parseTree(text)
	if err != nil {
		doc.RecordError("malformed XML: " + err.Error())
		return doc
	}

	switch {
	case strings.EqualFold(tree.root, "procInutNFe"):
		extractVoiding(&doc, tree)
	case strings.EqualFold(tree.root, "nfeProc"):
		extractEnvelope(&doc, tree)
	default:
		doc.RecordError("unsupported root element <" + tree.root + ">")
	}
	return doc
}

// parseTree walks the token stream collecting the blocks of interest. An
// element stack tracks parentage for infInut; elements decoded or skipped
// wholesale never enter the stack because the decoder consumes their end
// tags.
func parseTree(text string) (*documentTree, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	// Content was normalized to UTF-8 up front, so legacy charset
	// declarations no longer describe the bytes. Pass them through.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	tree := &documentTree{}
	var stack []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if tree.root == "" {
				tree.root = t.Name.Local
			}
			switch t.Name.Local {
			case "infProt":
				var p protocolBlock
				if err := dec.DecodeElement(&p, &t); err != nil {
					return nil, err
				}
				tree.protocols = append(tree.protocols, p)
			case "infInut":
				parent := ""
				if len(stack) > 0 {
					parent = stack[len(stack)-1]
				}
				var v voidingBlock
				if err := dec.DecodeElement(&v, &t); err != nil {
					return nil, err
				}
				tree.voidings = append(tree.voidings, voidingEntry{parent: parent, block: v})
			case "ide":
				if tree.ident != nil {
					if err := dec.Skip(); err != nil {
						return nil, err
					}
					continue
				}
				var id identBlock
				if err := dec.DecodeElement(&id, &t); err != nil {
					return nil, err
				}
				tree.ident = &id
			default:
				stack = append(stack, t.Name.Local)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if tree.root == "" {
		return nil, eris.New("no root element")
	}
	return tree, nil
}

// classifyProtocol resolves the status of a document that does carry a
// protocol or result block. An empty code inside a present block is an
// unknown status; the plain Unknown bucket stays reserved for files with no
// classifiable structure at all.
func classifyProtocol(code string) model.DocumentType {
	if code == "" {
		return model.UnknownStatusType(code)
	}
	return ClassifyStatus(code)
}

// extractVoiding fills doc from an inutilization document. The SEFAZ result
// block wins; a request without a result is typed as no-protocol and keeps
// the requested range so it still shows up in the detail report.
func extractVoiding(doc *model.Document, tree *documentTree) {
	if res := tree.voiding("retInutNFe"); res != nil {
		doc.StatusCode = strings.TrimSpace(res.CStat)
		doc.Type = classifyProtocol(doc.StatusCode)
		doc.StatusReason = strings.TrimSpace(res.XMotivo)
		doc.Model = strings.TrimSpace(res.Mod)
		doc.Series = strings.TrimSpace(res.Serie)
		doc.NumberStart = strings.TrimSpace(res.NNFIni)
		doc.NumberEnd = strings.TrimSpace(res.NNFFin)
		doc.IssuedAt = strings.TrimSpace(res.DhRecbto)
		return
	}
	if req := tree.voiding("inutNFe"); req != nil {
		doc.Type = model.DocTypeVoidedNoProtocol
		doc.StatusReason = strings.TrimSpace(req.XJust)
		doc.Model = strings.TrimSpace(req.Mod)
		doc.Series = strings.TrimSpace(req.Serie)
		doc.NumberStart = strings.TrimSpace(req.NNFIni)
		doc.NumberEnd = strings.TrimSpace(req.NNFFin)
		doc.RecordError("inutilization result block (retInutNFe) not found")
		return
	}
	doc.RecordError("invalid inutilization structure: no infInut block")
}

// extractEnvelope fills doc from an authorization envelope. When several
// infProt blocks are present the last one reflects the final SEFAZ outcome.
func extractEnvelope(doc *model.Document, tree *documentTree) {
	if n := len(tree.protocols); n > 0 {
		last := tree.protocols[n-1]
		doc.StatusCode = strings.TrimSpace(last.CStat)
		doc.Type = classifyProtocol(doc.StatusCode)
		doc.StatusReason = strings.TrimSpace(last.XMotivo)
		doc.AccessKey = strings.TrimSpace(last.ChNFe)
	} else {
		doc.Type = model.DocTypeNoProtocol
		doc.RecordError("authorization protocol block (infProt) not found")
	}

	if tree.ident != nil {
		num := strings.TrimSpace(tree.ident.NNF)
		doc.NumberStart = num
		doc.NumberEnd = num
		doc.Model = strings.TrimSpace(tree.ident.Mod)
		doc.Series = strings.TrimSpace(tree.ident.Serie)
		doc.IssuedAt = strings.TrimSpace(tree.ident.DhEmi)
	}

	// Some emitters nest an inutilization result inside an envelope. When
	// the status resolved to voided, the infInut range replaces the single
	// nNF taken from ide.
	if doc.Type == model.DocTypeVoided {
		if v := tree.anyVoiding(); v != nil {
			doc.NumberStart = strings.TrimSpace(v.NNFIni)
			doc.NumberEnd = strings.TrimSpace(v.NNFFin)
		}
	}
}
