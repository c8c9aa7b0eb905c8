package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/cwygoda/papers/internal/domain"
)

// Status classes for refused requests.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrServerError  = errors.New("server error")
)

// Credentials is the basic-auth pair sent with every request.
type Credentials struct {
	Username string
	Password string
}

// Options configures the HTTP client.
type Options struct {
	// Timeout bounds a whole request including the body read. Zero means none.
	Timeout time.Duration

	// UserAgent is sent when non-empty.
	UserAgent string
}

// Client performs authenticated GET requests. Safe for concurrent use.
type Client struct {
	client *http.Client
	creds  Credentials
	opts   Options
}

// NewClient creates a client that keeps cookies across requests. Bodies are
// never transparently decompressed, so Content-Length always describes the
// bytes that are read and written.
func NewClient(creds Credentials, opts Options) *Client {
	jar, _ := cookiejar.New(nil)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	return &Client{
		client: &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		creds: creds,
		opts:  opts,
	}
}

// Get sends one authenticated GET. On success the caller owns resp.Body.
// Every failure is a *domain.FetchError.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, &domain.FetchError{URL: url, Status: resp.StatusCode, Err: err}
	}
	return resp, nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return ErrServerError
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
