// Package fetch implements ports.Fetcher: local file URLs are read straight
// from disk, everything else is a plain HTTP GET. No retries, no caching.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corey/temmekit/internal/ports"
)

// FileScheme is the local-file URL prefix.
const FileScheme = "file://"

// Config controls the HTTP side of the fetcher.
type Config struct {
	// Timeout bounds a whole GET. Zero leaves the transport default (none).
	Timeout   time.Duration
	UserAgent string
	// MaxBody fails responses larger than this many bytes. Zero reads
	// everything.
	MaxBody int64
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Fetcher implements ports.Fetcher.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// New creates a fetcher.
func New(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{client: client, userAgent: cfg.UserAgent, maxBody: cfg.MaxBody}
}

// Fetch returns the content behind rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if IsFileURL(rawURL) {
		return readLocal(rawURL)
	}
	return f.get(ctx, rawURL)
}

// IsFileURL reports whether u points at the local filesystem.
func IsFileURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), FileScheme)
}

// FilePath strips the scheme off a file URL. Percent-escapes are decoded when
// they form a valid escape sequence; otherwise the path is used verbatim.
func FilePath(u string) string {
	p := u[len(FileScheme):]
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return filepath.FromSlash(p)
}

func readLocal(u string) (string, error) {
	path := FilePath(u)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &ports.FetchError{Kind: ports.FetchNotFound, URL: u, Err: err}
		}
		return "", &ports.FetchError{Kind: ports.FetchUnreadable, URL: u, Err: err}
	}
	return string(data), nil
}

func (f *Fetcher) get(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", &ports.FetchError{Kind: ports.FetchNetworkError, URL: u, Err: fmt.Errorf("build request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &ports.FetchError{Kind: ports.FetchNetworkError, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &ports.FetchError{Kind: ports.FetchHTTPError, URL: u, Status: resp.StatusCode}
	}

	var r io.Reader = resp.Body
	if f.maxBody > 0 {
		// one byte over the cap tells a full body from a cut one
		r = io.LimitReader(resp.Body, f.maxBody+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", &ports.FetchError{Kind: ports.FetchNetworkError, URL: u, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.maxBody > 0 && int64(len(body)) > f.maxBody {
		return "", &ports.FetchError{Kind: ports.FetchTooLarge, URL: u, Err: fmt.Errorf("body exceeds %d bytes", f.maxBody)}
	}
	return string(body), nil
}
