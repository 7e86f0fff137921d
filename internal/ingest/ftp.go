package ingest

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/notaops/fiscal-cli/internal/archive"
	"github.com/notaops/fiscal-cli/internal/resilience"
)

// FTPSource pulls a batch off an FTP server. The URL path may point at a
// single .xml file, a .zip archive, or a directory whose .xml entries are
// retrieved one by one. Transient transfer failures retry the whole load.
type FTPSource struct {
	rawURL string
	opts   Options
}

func (s *FTPSource) Describe() string { return s.rawURL }

func (s *FTPSource) Load(ctx context.Context) (map[string][]byte, error) {
	cfg := s.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("ftp", "load")
	}
	return resilience.DoVal(ctx, cfg, s.loadOnce)
}

func (s *FTPSource) loadOnce(ctx context.Context) (map[string][]byte, error) {
	host, remotePath, err := parseFTPURL(s.rawURL)
	if err != nil {
		return nil, err
	}

	timeout := s.opts.FTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	zap.L().Debug("ingest: ftp connecting", zap.String("host", host), zap.String("path", remotePath))
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	user, pass := s.opts.FTPUser, s.opts.FTPPassword
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrap(err, "ingest: ftp login")
	}

	switch strings.ToLower(path.Ext(remotePath)) {
	case ".zip":
		data, err := retrieve(conn, remotePath)
		if err != nil {
			return nil, err
		}
		return archive.ExtractXML(bytes.NewReader(data), int64(len(data)))
	case ".xml":
		data, err := retrieve(conn, remotePath)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{path.Base(remotePath): data}, nil
	}
	return s.loadDir(conn, remotePath)
}

// loadDir retrieves every .xml entry of a remote directory, sequentially on
// the one control connection.
func (s *FTPSource) loadDir(conn *ftp.ServerConn, dir string) (map[string][]byte, error) {
	entries, err := conn.List(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: ftp list %s", dir)
	}

	files := make(map[string][]byte)
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile || !strings.EqualFold(path.Ext(entry.Name), ".xml") {
			continue
		}
		data, err := retrieve(conn, path.Join(dir, entry.Name))
		if err != nil {
			return nil, err
		}
		files[entry.Name] = data
	}
	zap.L().Debug("ingest: ftp directory loaded", zap.String("dir", dir), zap.Int("files", len(files)))
	return files, nil
}

func retrieve(conn *ftp.ServerConn, remotePath string) ([]byte, error) {
	resp, err := conn.Retr(remotePath)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: ftp retrieve %s", remotePath)
	}
	data, err := io.ReadAll(resp)
	closeErr := resp.Close()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: ftp read %s", remotePath)
	}
	if closeErr != nil {
		return nil, eris.Wrapf(closeErr, "ingest: ftp close %s", remotePath)
	}
	return data, nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, remotePath string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ingest: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ingest: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	remotePath = u.Path
	if remotePath == "" {
		return "", "", eris.New("ingest: empty path in ftp url")
	}
	return host, remotePath, nil
}
