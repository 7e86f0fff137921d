package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DirSource loads every .xml file under a directory, recursively. Names are
// slash-separated paths relative to the directory, so nested duplicates of a
// file name stay distinct.
type DirSource struct {
	Dir string
}

func (s *DirSource) Describe() string { return s.Dir }

func (s *DirSource) Load(ctx context.Context) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(s.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".xml") {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return eris.Wrapf(err, "ingest: read %s", p)
		}
		rel, err := filepath.Rel(s.Dir, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: walk %s", s.Dir)
	}
	zap.L().Debug("ingest: directory loaded", zap.String("dir", s.Dir), zap.Int("files", len(files)))
	return files, nil
}

// FileSource loads a single .xml file.
type FileSource struct {
	Path string
}

func (s *FileSource) Describe() string { return s.Path }

func (s *FileSource) Load(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", s.Path)
	}
	return map[string][]byte{filepath.Base(s.Path): data}, nil
}
