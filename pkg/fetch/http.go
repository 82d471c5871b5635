package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fulmenhq/draftfix/pkg/logger"
)

// DefaultUserAgent is sent when HTTPOptions.UserAgent is empty. Some CDNs
// reject non-browser agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	// Client overrides the default TLS 1.2+ client.
	Client    *http.Client
	UserAgent string
	// MaxBytes caps the payload size; 0 means unlimited.
	MaxBytes int64
	// HostHeaders returns extra headers for a request host.
	HostHeaders func(host string) map[string]string
}

// HTTPFetcher downloads http and https locators.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBytes    int64
	hostHeaders func(string) map[string]string
}

// NewHTTPFetcher creates an HTTPFetcher
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				TLSHandshakeTimeout: 15 * time.Second,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: ua, maxBytes: opts.MaxBytes, hostHeaders: opts.HostHeaders}
}

// Fetch downloads locator into destPath. Non-2xx responses are a FetchError
// carrying the status code.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator, destPath string) error {
	u, err := url.Parse(locator)
	if err != nil {
		return &FetchError{Locator: locator, Wrapped: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &FetchError{Locator: locator, Wrapped: fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return &FetchError{Locator: locator, Wrapped: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.hostHeaders != nil {
		for k, v := range f.hostHeaders(u.Hostname()) {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return newError(locator, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &FetchError{Locator: locator, StatusCode: resp.StatusCode}
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return &FetchError{Locator: locator, Wrapped: fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, resp.ContentLength, f.maxBytes)}
	}
	if err := writeStream(ctx, resp.Body, destPath, f.maxBytes); err != nil {
		return newError(locator, err)
	}
	logger.Debug("downloaded asset",
		logger.String("host", u.Hostname()),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
