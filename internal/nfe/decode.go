package nfe

import (
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// decodeText normalizes raw file content to UTF-8 text. Valid UTF-8 passes
// through untouched; anything else is re-decoded as ISO-8859-1, which older
// SEFAZ emitters still produce. fellBack reports whether the fallback path
// was taken so the caller can record it on the document.
func decodeText(content []byte) (text string, fellBack bool, err error) {
	if utf8.Valid(content) {
		return string(content), false, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", true, eris.Wrap(err, "nfe: decode content")
	}
	return string(out), true, nil
}
