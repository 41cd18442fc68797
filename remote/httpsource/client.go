/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package httpsource

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/models"
)

// Client implements remote.Source against an offset/limit collection API:
//
//	GET {base}/{collection}?limit=&offset=
//	GET {base}/{collection}/{id}
//	GET {base}/{collection}/{name}
type Client struct {
	baseURL     string
	collection  string
	artworkBase string
	userAgent   string
	http        *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Timeouts and retries belong there.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithCollection sets the collection path segment (default "pokemon")
func WithCollection(name string) Option {
	return func(c *Client) {
		c.collection = name
	}
}

// WithArtworkBase sets the base URL used when a record has no usable image
func WithArtworkBase(base string) Option {
	return func(c *Client) {
		c.artworkBase = base
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp FetchedAt
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewValidationError("baseURL", fmt.Sprintf("invalid URL %q", baseURL))
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		collection:  "pokemon",
		artworkBase: "https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/other/official-artwork",
		userAgent:   "pagecache",
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPage returns one page of summaries. HasMore mirrors the "next" link.
func (c *Client) FetchPage(ctx context.Context, limit, offset int) (*models.PageResult, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var body listResponse
	if err := c.get(ctx, "fetch page", c.collection, q, &body); err != nil {
		return nil, err
	}

	page := body.toPage()
	c.logger.Debug("fetched page",
		zap.Int("limit", limit),
		zap.Int("offset", offset),
		zap.Int("results", len(page.Summaries)),
		zap.Bool("has_more", page.HasMore))
	return page, nil
}

// FetchDetail returns the full record for id.
func (c *Client) FetchDetail(ctx context.Context, id int) (*models.Record, error) {
	var body detailResponse
	if err := c.get(ctx, "fetch detail", c.collection+"/"+strconv.Itoa(id), nil, &body); err != nil {
		return nil, err
	}
	return body.toRecord(c.artworkBase, c.now()), nil
}

// FetchByName returns the full record for name. Names are matched lower-cased.
func (c *Client) FetchByName(ctx context.Context, name string) (*models.Record, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, errors.NewNotFoundError(c.collection, name)
	}

	var body detailResponse
	if err := c.get(ctx, "fetch by name", c.collection+"/"+url.PathEscape(name), nil, &body); err != nil {
		return nil, err
	}
	return body.toRecord(c.artworkBase, c.now()), nil
}

// get performs a GET and decodes the JSON body into out, mapping failures
// onto the error taxonomy.
func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return errors.NewTransientFetchError(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.NewNotFoundError(c.collection, path)
	case isTransientStatus(resp.StatusCode):
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.NewTransientFetchError(op, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var netErr net.Error
		if stderrors.As(err, &netErr) {
			return errors.NewTransientFetchError(op, err)
		}
		return fmt.Errorf("%s: decode body: %w", op, err)
	}
	return nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}
