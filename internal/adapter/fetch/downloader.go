package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwygoda/papers/internal/domain"
)

const chunkSize = 32 * 1024

// Downloader streams documents to disk.
type Downloader struct {
	client *Client
}

// NewDownloader creates a Downloader sharing client.
func NewDownloader(client *Client) *Downloader {
	return &Downloader{client: client}
}

// FileName returns the final "/"-delimited segment of rawURL.
func FileName(rawURL string) string {
	return rawURL[strings.LastIndex(rawURL, "/")+1:]
}

// Download fetches rawURL into dir, named by the URL's last segment, and
// reports cumulative bytes to progress. The server must send Content-Length.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string, progress domain.ProgressReporter) (int64, error) {
	resp, err := d.client.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 {
		return 0, &domain.MissingLengthError{URL: rawURL}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, &domain.IOError{Op: "create directory", Path: dir, Err: err}
	}

	name := FileName(rawURL)
	if name == "" {
		return 0, &domain.IOError{Op: "name file for", Path: rawURL, Err: errors.New("url has no final path segment")}
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return 0, &domain.IOError{Op: "create file", Path: path, Err: err}
	}
	defer f.Close()

	progress.SetTotal(total)
	progress.SetMessage("downloading: " + name)

	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			nw, writeErr := f.Write(buf[:n])
			if writeErr == nil && nw != n {
				writeErr = io.ErrShortWrite
			}
			if writeErr != nil {
				return written, &domain.IOError{Op: "write", Path: path, Err: writeErr}
			}
			written += int64(nw)
			progress.SetPosition(min(written, total))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", readErr)}
		}
	}

	if err := f.Close(); err != nil {
		return written, &domain.IOError{Op: "close", Path: path, Err: err}
	}
	return written, nil
}
