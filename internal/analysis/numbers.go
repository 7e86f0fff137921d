package analysis

import (
	"strings"

	"go.uber.org/zap"

	"github.com/notaops/fiscal-cli/internal/model"
)

// ParseCopyNumbers parses a comma-separated list of document numbers
// ("120,121,133") into the copy-selection set. Blank tokens are ignored;
// tokens that are not plain digit strings are logged and skipped so one typo
// does not sink the batch.
func ParseCopyNumbers(raw string) map[int]struct{} {
	targets := make(map[int]struct{})
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, ok := model.ParseNumber(tok)
		if !ok {
			zap.L().Warn("analysis: ignoring invalid copy number", zap.String("value", tok))
			continue
		}
		targets[n] = struct{}{}
	}
	return targets
}
