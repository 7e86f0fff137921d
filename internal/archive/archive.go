// Package archive packages job directories for download and expands uploaded
// ZIP batches into the in-memory input set the analyzer consumes.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Create zips everything under dir into a new archive inside dir named
// resultados_<timestamp>.zip and returns its path. Entry paths are relative
// to dir; existing .zip files are left out so repeated packaging does not
// nest archives.
func Create(dir string, now time.Time) (string, error) {
	name := fmt.Sprintf("resultados_%s.zip", now.Format("20060102_150405"))
	dest := filepath.Join(dir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrapf(err, "archive: create %s", dest)
	}
	zw := zip.NewWriter(f)

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if strings.EqualFold(filepath.Ext(rel), ".zip") {
			return nil
		}

		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close()
		return err
	})
	if walkErr != nil {
		zw.Close()
		f.Close()
		os.Remove(dest)
		return "", eris.Wrapf(walkErr, "archive: pack %s", dir)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", eris.Wrap(err, "archive: finalize zip")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "archive: close %s", dest)
	}
	return dest, nil
}

// ExtractXML reads a ZIP archive and returns its .xml entries keyed by entry
// path. Non-XML entries are skipped; entries that escape the archive root
// are dropped with a warning.
func ExtractXML(r io.ReaderAt, size int64) (map[string][]byte, error) {
	zr, err := zip.NewReader(r, size)
	// Escaping entry names are filtered below, so the insecure-path signal
	// alone does not fail the batch.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, eris.Wrap(err, "archive: open zip")
	}
	return readEntries(zr.File)
}

// ExtractXMLFile is ExtractXML for an archive on disk.
func ExtractXMLFile(zipPath string) (map[string][]byte, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, eris.Wrapf(err, "archive: open %s", zipPath)
	}
	defer zr.Close() //nolint:errcheck

	return readEntries(zr.File)
}

func readEntries(entries []*zip.File) (map[string][]byte, error) {
	files := make(map[string][]byte)
	for _, f := range entries {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(filepath.ToSlash(f.Name))
		if name == ".." || strings.HasPrefix(name, "../") || path.IsAbs(name) {
			zap.L().Warn("archive: skipping entry outside archive root", zap.String("entry", f.Name))
			continue
		}
		if !strings.EqualFold(path.Ext(name), ".xml") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "archive: open entry %s", f.Name)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "archive: read entry %s", f.Name)
		}
		files[name] = data
	}
	return files, nil
}
