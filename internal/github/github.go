package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/schaermu/tmplsync/internal/syncerr"
)

// DefaultTimeout bounds every single request when Options.Timeout is unset
const DefaultTimeout = 30 * time.Second

// Client provides read access to files in a remote repository
type Client interface {
	// Fetch returns the raw content of a single file
	Fetch(ctx context.Context, remotePath string) ([]byte, error)
	// ListFiles returns every file path below remoteDir, flattened
	ListFiles(ctx context.Context, remoteDir string) ([]string, error)
}

// Options configures an HTTPClient
type Options struct {
	RawBaseURL   string
	APIBaseURL   string
	Ref          string
	Timeout      time.Duration
	MaxBodyBytes int64 // <= 0 disables the limit
	MaxDepth     int   // <= 0 disables the limit
	Compression  bool
	UserAgent    string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// HTTPClient implements Client against the raw content endpoint and the
// contents API of a GitHub repository
type HTTPClient struct {
	rawBase      string
	apiBase      string
	ref          string
	timeout      time.Duration
	maxBodyBytes int64
	maxDepth     int
	compression  bool
	userAgent    string
	http         *http.Client
	logger       *slog.Logger
}

// NewHTTPClient creates a new client for anonymous public-content access
func NewHTTPClient(opts Options) *HTTPClient {
	c := &HTTPClient{
		rawBase:      strings.TrimSuffix(opts.RawBaseURL, "/"),
		apiBase:      strings.TrimSuffix(opts.APIBaseURL, "/"),
		ref:          opts.Ref,
		timeout:      opts.Timeout,
		maxBodyBytes: opts.MaxBodyBytes,
		maxDepth:     opts.MaxDepth,
		compression:  opts.Compression,
		userAgent:    opts.UserAgent,
		http:         opts.HTTPClient,
		logger:       opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = "tmplsync"
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Fetch downloads a single file from the raw content endpoint
func (c *HTTPClient) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	u := c.rawBase + "/" + escapePath(remotePath)
	c.logger.Debug("fetching file", "url", u)

	body, err := c.get(ctx, u, remotePath, syncerr.KindNotFound, nil)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched file", "path", remotePath, "bytes", len(body))
	return body, nil
}

// get performs one GET bounded by the client timeout and classifies failures.
// notFound selects the kind reported for a 404.
func (c *HTTPClient) get(ctx context.Context, rawURL, path string, notFound syncerr.Kind, header http.Header) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.compression {
		req.Header.Set("Accept-Encoding", "zstd, gzip")
	} else {
		req.Header.Set("Accept-Encoding", "identity")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.requestError(ctx, reqCtx, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := statusError(resp, path, notFound); err != nil {
		return nil, err
	}

	body, err := c.readBody(resp, path)
	if err != nil {
		return nil, c.requestError(ctx, reqCtx, path, err)
	}
	return body, nil
}

// readBody decodes the response according to its Content-Encoding and
// enforces the body size limit
func (c *HTTPClient) readBody(resp *http.Response, path string) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch enc := resp.Header.Get("Content-Encoding"); enc {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() {
			_ = gz.Close()
		}()
		reader = gz
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		reader = zr
	default:
		c.logger.Warn("unknown content encoding, reading body as-is", "path", path, "encoding", enc)
	}

	// one extra byte detects an oversized body; at MaxInt64 there is no room for it
	if c.maxBodyBytes <= 0 || c.maxBodyBytes == math.MaxInt64 {
		return io.ReadAll(reader)
	}

	body, err := io.ReadAll(io.LimitReader(reader, c.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, &syncerr.Error{
			Kind:   syncerr.KindTooLarge,
			Path:   path,
			Detail: fmt.Sprintf("more than %d bytes", c.maxBodyBytes),
		}
	}
	return body, nil
}

// requestError maps a transport or body read error to a syncerr kind
func (c *HTTPClient) requestError(parent, reqCtx context.Context, path string, err error) error {
	var se *syncerr.Error
	var netErr net.Error
	switch {
	case errors.As(err, &se):
		return se
	case parent.Err() != nil:
		return &syncerr.Error{Kind: syncerr.KindCanceled, Path: path, Err: parent.Err()}
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &syncerr.Error{Kind: syncerr.KindTimeout, Path: path, Timeout: c.timeout, Err: err}
	default:
		return &syncerr.Error{Kind: syncerr.KindNetwork, Path: path, Err: err}
	}
}

// statusError classifies a non-2xx response
func statusError(resp *http.Response, path string, notFound syncerr.Kind) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return &syncerr.Error{Kind: notFound, Path: path, Status: code}
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return &syncerr.Error{
			Kind:   syncerr.KindRateLimited,
			Path:   path,
			Status: code,
			Detail: rateLimitDetail(resp.Header),
		}
	default:
		return &syncerr.Error{
			Kind:       syncerr.KindHTTP,
			Path:       path,
			Status:     code,
			StatusText: statusText(resp),
		}
	}
}

// rateLimitDetail describes when the rate limit resets, if the host said so
func rateLimitDetail(h http.Header) string {
	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if secs, err := strconv.ParseInt(reset, 10, 64); err == nil {
			return "resets at " + time.Unix(secs, 0).UTC().Format(time.RFC3339)
		}
	}
	if after := h.Get("Retry-After"); after != "" {
		return "retry after " + after + "s"
	}
	return ""
}

// statusText returns the reason phrase, e.g. "Bad Gateway"
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// escapePath escapes every segment of a slash-separated repository path
func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
