package analysis

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/notaops/fiscal-cli/internal/model"
)

// CopySubdir is the directory inside a job where selected originals land.
const CopySubdir = "xmls_copiados"

// copySelected persists every document whose starting number is in targets
// and marks it Copied. It runs after extraction has finished, so writes are
// serialized. Destination names are flattened to their base name; when two
// sources share one, the last write wins. A failed copy is recorded on the
// document and never marks it Copied.
func copySelected(docs []model.Document, files map[string][]byte, targets map[int]struct{}, copyDir string) int {
	if len(targets) == 0 {
		return 0
	}

	copied := 0
	for i := range docs {
		n, ok := docs[i].SequenceNumber()
		if !ok {
			continue
		}
		if _, want := targets[n]; !want {
			continue
		}

		dest := filepath.Join(copyDir, filepath.Base(docs[i].SourceName))
		if err := os.WriteFile(dest, files[docs[i].SourceName], 0o644); err != nil {
			docs[i].RecordError("copy failed: " + err.Error())
			zap.L().Error("analysis: copy failed",
				zap.String("file", docs[i].SourceName),
				zap.Error(err))
			continue
		}
		docs[i].Copied = true
		copied++
	}
	return copied
}
