// Package fetcher downloads reference files and reads delimited and
// spreadsheet tables.
package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Open returns the contents of src, downloading it with f when src is an
// http(s) URL and reading it from disk otherwise.
func Open(ctx context.Context, f Fetcher, src string) (io.ReadCloser, error) {
	if IsURL(src) {
		if f == nil {
			return nil, eris.Errorf("fetcher: no downloader for %s", src)
		}
		return f.Download(ctx, src)
	}
	file, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", src)
	}
	return file, nil
}

// IsURL reports whether src should be downloaded rather than opened.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}
