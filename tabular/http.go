package tabular

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPAuthType is the authentication sent with table requests.
type HTTPAuthType string

const (
	// NoAuth sends no credentials.
	NoAuth HTTPAuthType = "none"
	// BasicAuth sends Username and Password.
	BasicAuth HTTPAuthType = "basic"
	// HeaderAuth sends Headers, for example an Authorization bearer token.
	HeaderAuth HTTPAuthType = "header"
)

// HTTPOptions configure an HTTPSource.
type HTTPOptions struct {
	Timeout            time.Duration     `yaml:"timeout"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
	AuthType           HTTPAuthType      `yaml:"auth_type"`
	Username           string            `yaml:"username"`
	Password           string            `yaml:"password"`
	Headers            map[string]string `yaml:"headers"`
}

// DefaultHTTPOptions are a 30 second timeout without authentication.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		Timeout:  30 * time.Second,
		AuthType: NoAuth,
		Headers:  map[string]string{},
	}
}

// Validate checks the authentication settings.
func (o HTTPOptions) Validate() error {
	if o.Timeout < 0 {
		return fmt.Errorf("http timeout must be >= 0, got %s", o.Timeout)
	}
	switch o.AuthType {
	case "", NoAuth, HeaderAuth:
	case BasicAuth:
		if o.Username == "" {
			return errors.New("basic auth requires a username")
		}
	default:
		return fmt.Errorf("unsupported http auth type %q", o.AuthType)
	}
	return nil
}

// HTTPSource serves tables from http and https URLs.
type HTTPSource struct {
	options HTTPOptions
	client  *http.Client
}

// NewHTTPSource creates a source with the given options.
func NewHTTPSource(options HTTPOptions) (*HTTPSource, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: options.Timeout}
	if options.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		client.Transport = transport
	}
	return &HTTPSource{options: options, client: client}, nil
}

// IsURL reports whether a locator is an http or https URL.
func IsURL(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

// Open fetches rawURL. Not found responses wrap ErrNotFound.
func (s *HTTPSource) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.options.AuthType == BasicAuth {
		req.SetBasicAuth(s.options.Username, s.options.Password)
	}
	for key, value := range s.options.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "go-evaluator/tabular")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("table not available: HTTP %d - %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}
