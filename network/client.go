package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultUploadTimeout  = 2 * time.Minute
	maxErrorBodyBytes     = 4096
)

// TokenSource returns the bearer token for the current session.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// ClientOptions configures the REST transport.
type ClientOptions struct {
	BaseURL     string
	TokenSource TokenSource

	HTTPClient     *http.Client
	UploadClient   *http.Client
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	UserAgent      string

	Logger *zerolog.Logger
}

// Client is an authenticated HTTP client for the messaging REST API.
type Client struct {
	baseURL     *url.URL
	tokenSource TokenSource
	http        *http.Client
	upload      *http.Client
	userAgent   string
	logger      zerolog.Logger
}

// NewClient creates a client with validated configuration.
func NewClient(options ClientOptions) (*Client, error) {
	if options.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(options.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", base.Scheme)
	}
	if options.TokenSource == nil {
		options.TokenSource = StaticToken("")
	}
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = defaultRequestTimeout
	}
	if options.UploadTimeout <= 0 {
		options.UploadTimeout = defaultUploadTimeout
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Timeout: options.RequestTimeout}
	}
	if options.UploadClient == nil {
		options.UploadClient = &http.Client{Timeout: options.UploadTimeout}
	}
	if options.UserAgent == "" {
		options.UserAgent = "buchat-client"
	}
	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}

	return &Client{
		baseURL:     base,
		tokenSource: options.TokenSource,
		http:        options.HTTPClient,
		upload:      options.UploadClient,
		userAgent:   options.UserAgent,
		logger:      logger.With().Str("component", "transport").Logger(),
	}, nil
}

// Ping checks that the API answers at all. Any HTTP response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(method, path, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	// path is pre-escaped by the caller with pathSegment.
	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve auth token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// pathSegment escapes one user-supplied path component.
func pathSegment(value string) string {
	return url.PathEscape(value)
}
