// Package fetch retrieves pages over HTTP for capture.
package fetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/logger"
)

// DefaultUserAgent is sent unless configured otherwise. Some sites refuse
// requests that don't look like a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultMaxBytes caps a response body.
const DefaultMaxBytes = 10 << 20

var (
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected HTTP status")
	// ErrTooLarge is returned when a body exceeds the size cap.
	ErrTooLarge = errors.New("response body exceeds size limit")
	// ErrUnsupportedScheme is returned for URLs that can't be fetched over HTTP.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme for fetching")
)

// Fetcher performs HTTP GETs.
type Fetcher struct {
	client   *http.Client
	ua       string
	maxBytes int64
	log      logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client = &http.Client{Timeout: d}
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.ua = ua
		}
	}
}

// WithMaxBytes caps the body size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// New creates a Fetcher with a 60s timeout and a 10 MiB cap.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 60 * time.Second},
		ua:       DefaultUserAgent,
		maxBytes: DefaultMaxBytes,
		log:      logger.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs url and returns the whole body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, errors.Wrapf(ErrUnsupportedScheme, "%s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrStatus, "%s returned %d", url, resp.StatusCode)
	}

	// Read one byte past the cap to detect oversized bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if int64(len(body)) > f.maxBytes {
		return nil, errors.Wrapf(ErrTooLarge, "%s exceeds %d bytes", url, f.maxBytes)
	}

	f.log.Debug("Fetched page",
		logger.String("url", url),
		logger.Int("status", resp.StatusCode),
		logger.Int("size", len(body)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}
