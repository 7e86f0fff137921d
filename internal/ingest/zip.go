package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/notaops/fiscal-cli/internal/archive"
)

// ZipSource loads every .xml entry of a local ZIP archive.
type ZipSource struct {
	Path string
}

func (s *ZipSource) Describe() string { return s.Path }

func (s *ZipSource) Load(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := archive.ExtractXMLFile(s.Path)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ingest: zip loaded", zap.String("zip", s.Path), zap.Int("files", len(files)))
	return files, nil
}
