// Package gdocs is a remote.Client for an Atom document-list service.
package gdocs

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/pkg/errors"
)

const (
	// DefaultBaseURL is the public document-list endpoint.
	DefaultBaseURL = "https://docs.google.com"
	// DefaultAccount addresses the authenticated user's own feed.
	DefaultAccount = "default"

	apiVersion = "3.0"
	component  = "gdocs"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Account    string
	Credential string
	UserAgent  string
	// AcceptGzip asks for gzip-coded listing feeds. Content fetches are
	// never coded.
	AcceptGzip bool
	// Timeout bounds each HTTP request; 0 disables it.
	Timeout time.Duration
}

// Client talks to the document-list feed over HTTPS.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// New creates a client. A nil httpClient uses a fresh http.Client with
// cfg.Timeout; a nil logger discards logs.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Account == "" {
		cfg.Account = DefaultAccount
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid base URL").
			WithComponent(component).
			WithContext("base_url", cfg.BaseURL).
			WithCause(err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		base:   base,
		http:   httpClient,
		logger: logger.With(zap.String("backend", component)),
	}, nil
}

// Name implements remote.Client.
func (c *Client) Name() string { return component }

// ListURL returns the first page URL of the listing feed for q.
func (c *Client) ListURL(q remote.Query) string {
	u := *c.base
	u.Path = u.Path + "/feeds/" + c.cfg.Account + "/private/full"
	v := url.Values{}
	v.Set("showfolders", "false")
	if q.MaxResults > 0 {
		v.Set("max-results", strconv.Itoa(q.MaxResults))
	}
	u.RawQuery = v.Encode()
	return u.String()
}

// ListDocuments fetches the listing feed, following "next" links until the
// last page.
func (c *Client) ListDocuments(ctx context.Context, q remote.Query) ([]remote.Entry, error) {
	var entries []remote.Entry
	next := c.ListURL(q)
	seen := map[string]bool{}

	for next != "" {
		if seen[next] {
			break
		}
		seen[next] = true

		f, err := c.fetchFeed(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, e := range f.Entries {
			if e.isFolder() {
				continue
			}
			entries = append(entries, e.toEntry())
		}
		next = f.nextLink()
	}

	c.logger.Debug("listed documents", zap.Int("entries", len(entries)))
	return entries, nil
}

func (c *Client) fetchFeed(ctx context.Context, rawURL string) (*feed, error) {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/atom+xml")
	// Asking explicitly turns off net/http's transparent decoding.
	if c.cfg.AcceptGzip {
		req.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, remoteError("list", "listing request failed", 0).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, remoteError("list", fmt.Sprintf("listing returned status %d", resp.StatusCode), resp.StatusCode)
	}

	body, err := c.decodedBody(resp)
	if err != nil {
		return nil, remoteError("list", "failed to decode listing", resp.StatusCode).WithCause(err)
	}
	defer body.Close()

	var f feed
	if err := xml.NewDecoder(body).Decode(&f); err != nil {
		return nil, remoteError("list", "failed to parse listing feed", resp.StatusCode).WithCause(err)
	}
	return &f, nil
}

// FetchRange requests rng of the document at uri. 200 and 206 both yield
// PartialContent since some servers ignore Range and send the whole body.
func (c *Client) FetchRange(ctx context.Context, uri string, rng remote.ByteRange) (remote.FetchResult, error) {
	req, err := c.newRequest(ctx, uri)
	if err != nil {
		return remote.FetchResult{}, err
	}
	req.Header.Set("Range", rng.Header())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return remote.FetchResult{}, remoteError("fetch_range", "content request failed", 0).
			WithContext("uri", uri).
			WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Warn("content fetch failed",
			zap.String("uri", uri),
			zap.Int("status", resp.StatusCode))
		return remote.HardFailure(resp.StatusCode), nil
	}

	// A Range applies to the content-coded bytes, so content is never
	// requested gzipped and the body is read as sent.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.FetchResult{}, remoteError("fetch_range", "failed to read content", resp.StatusCode).
			WithContext("uri", uri).
			WithCause(err)
	}

	c.logger.Debug("fetched content",
		zap.String("uri", uri),
		zap.String("range", rng.Header()),
		zap.Int("status", resp.StatusCode),
		zap.Int("size", len(data)),
		zap.Duration("duration", time.Since(start)))
	return remote.PartialContent(data), nil
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "invalid request URL").
			WithComponent(component).
			WithContext("uri", rawURL).
			WithCause(err)
	}
	req.Header.Set("GData-Version", apiVersion)
	if c.cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Credential)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	return req, nil
}

func (c *Client) decodedBody(resp *http.Response) (io.ReadCloser, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.NopCloser(resp.Body), nil
	}
	return gzip.NewReader(resp.Body)
}

func remoteError(op, msg string, status int) *errors.DriveFSError {
	return errors.NewError(errors.ErrCodeRemoteFailure, msg).
		WithComponent(component).
		WithOperation(op).
		WithStatus(status)
}
