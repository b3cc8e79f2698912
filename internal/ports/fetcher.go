package ports

import "context"

// Fetcher returns the textual content behind a URL. Local file URLs are read
// from disk; everything else is an HTTP GET. Failures are *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
