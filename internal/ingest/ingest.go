// Package ingest loads fiscal XML batches from local directories, ZIP
// archives, and FTP servers into the single name-to-bytes form the
// analyzer consumes.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/notaops/fiscal-cli/internal/resilience"
)

// Source yields one batch of named XML payloads.
type Source interface {
	// Load reads every XML document the source can see. Names are unique
	// within the batch and become the arquivo_origem of the reports.
	Load(ctx context.Context) (map[string][]byte, error)
	// Describe identifies the source for reports and logs.
	Describe() string
}

// Options tunes remote sources. The zero value uses anonymous FTP with
// default timeouts and retries.
type Options struct {
	FTPUser     string
	FTPPassword string
	FTPTimeout  time.Duration
	Retry       resilience.RetryConfig
}

// FromPath picks a source for path: ftp:// URLs fetch remotely, .zip files
// expand in place, directories walk recursively, and a single .xml file
// loads by itself.
func FromPath(path string, opts Options) (Source, error) {
	if strings.HasPrefix(strings.ToLower(path), "ftp://") {
		return &FTPSource{rawURL: path, opts: opts}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: stat source %s", path)
	}
	if info.IsDir() {
		return &DirSource{Dir: path}, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return &ZipSource{Path: path}, nil
	case ".xml":
		return &FileSource{Path: path}, nil
	}
	return nil, eris.Errorf("ingest: unsupported source %s (want directory, .zip, .xml, or ftp:// url)", path)
}
