// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/autobrr/arrwarden/internal/buildinfo"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	SearchRequestTimeout  = 30 * time.Second

	defaultAttempts   = 3
	defaultRetryDelay = 2 * time.Second
	queuePageSize     = 1000
	maxResponseBytes  = 32 << 20
	maxErrorBodyBytes = 512
)

// StatusError represents a non-2xx response from an *arr API.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	_, ok := target.(*StatusError)
	return ok
}

// Temporary reports whether the status is worth retrying (429 or 5xx).
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client talks to one Radarr/Sonarr v3 API root.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	logger         zerolog.Logger
	attempts       uint
	retryDelay     time.Duration
	requestTimeout time.Duration
	searchTimeout  time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetry overrides how many attempts a request gets and the pause between them.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

func WithTimeouts(request, search time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.requestTimeout = request
		}
		if search > 0 {
			c.searchTimeout = search
		}
	}
}

// NewClient creates a client for the API root, e.g. http://localhost:7878/api/v3.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		httpClient:     &http.Client{},
		logger:         zerolog.Nop(),
		attempts:       defaultAttempts,
		retryDelay:     defaultRetryDelay,
		requestTimeout: DefaultRequestTimeout,
		searchTimeout:  SearchRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetQueue fetches the whole download queue in a single page.
func (c *Client) GetQueue(ctx context.Context) (*QueuePage, error) {
	q := url.Values{}
	q.Set("includeUnknownMovieItems", "true")
	q.Set("includeMovie", "true")
	q.Set("pageSize", strconv.Itoa(queuePageSize))

	var page QueuePage
	if err := c.do(ctx, http.MethodGet, "queue", q, nil, c.requestTimeout, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RemoveOptions maps onto the query flags of DELETE /queue/{id}.
type RemoveOptions struct {
	RemoveFromClient bool
	Blocklist        bool
	Redownload       bool
	ChangeCategory   bool
}

// RemoveFromQueue deletes a queue entry.
func (c *Client) RemoveFromQueue(ctx context.Context, id int, opts RemoveOptions) error {
	q := url.Values{}
	q.Set("removeFromClient", strconv.FormatBool(opts.RemoveFromClient))
	q.Set("blocklist", strconv.FormatBool(opts.Blocklist))
	q.Set("skipRedownload", strconv.FormatBool(!opts.Redownload))
	q.Set("changeCategory", strconv.FormatBool(opts.ChangeCategory))

	return c.do(ctx, http.MethodDelete, "queue/"+strconv.Itoa(id), q, nil, c.requestTimeout, nil)
}

// ClearBlocklist clears blocklist entries for one media id, or the whole
// blocklist when mediaID is nil.
func (c *Client) ClearBlocklist(ctx context.Context, mediaID *int) error {
	if mediaID != nil {
		return c.do(ctx, http.MethodPost, "blocklist/"+strconv.Itoa(*mediaID), nil, nil, c.requestTimeout, nil)
	}
	return c.do(ctx, http.MethodPost, "command", nil, CommandRequest{Name: "clearBlocklist"}, c.requestTimeout, nil)
}

// ReleaseQuery selects what GET /release searches for. MovieID wins when both are set.
type ReleaseQuery struct {
	MovieID   *int
	EpisodeID *int
}

func (q ReleaseQuery) values() (url.Values, error) {
	v := url.Values{}
	switch {
	case q.MovieID != nil:
		v.Set("movieId", strconv.Itoa(*q.MovieID))
	case q.EpisodeID != nil:
		v.Set("episodeId", strconv.Itoa(*q.EpisodeID))
	default:
		return nil, errors.New("release search needs a movie or episode id")
	}
	return v, nil
}

// SearchReleases lists the releases indexers currently offer for one item.
func (c *Client) SearchReleases(ctx context.Context, query ReleaseQuery) ([]Release, error) {
	q, err := query.values()
	if err != nil {
		return nil, err
	}

	var releases []Release
	if err := c.do(ctx, http.MethodGet, "release", q, nil, c.searchTimeout, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// GrabRelease asks the service to download a specific release.
func (c *Client) GrabRelease(ctx context.Context, guid string, indexerID int) error {
	body := GrabRequest{GUID: guid, IndexerID: indexerID}
	return c.do(ctx, http.MethodPost, "release", nil, body, c.searchTimeout, nil)
}

// SystemStatus fetches the application name and version.
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.do(ctx, http.MethodGet, "system/status", nil, nil, c.requestTimeout, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

var minimumAppVersion = semver.MustParse("3.0.0")

// ParseAppVersion parses *arr versions such as "5.2.6.8376". Only the first
// three components are significant.
func ParseAppVersion(raw string) (*semver.Version, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "v")
	parts := strings.Split(raw, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	v, err := semver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return nil, fmt.Errorf("invalid app version %q: %w", raw, err)
	}
	return v, nil
}

// Supported reports whether the instance speaks the v3 API this client targets.
func (s *SystemStatus) Supported() (bool, error) {
	v, err := ParseAppVersion(s.Version)
	if err != nil {
		return false, err
	}
	return !v.LessThan(minimumAppVersion), nil
}

// Do sends a JSON request relative to the API root using the default timeout.
// out may be nil when the response body is not needed.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, nil, body, c.requestTimeout, out)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request with retries. GET requests retry on transport errors,
// 429 and 5xx; other methods only retry when the server cannot have acted on
// the request. The final error is logged before it is returned.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	target := c.endpoint(path, query)

	err := retry.Do(
		func() error {
			return c.attempt(ctx, method, target, payload, timeout, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryPolicy(method)),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().Err(err).Uint("attempt", n+1).Str("method", method).Str("url", target).Msg("retrying request")
		}),
	)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("url", target).Msg("request failed")
		return err
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, timeout time.Duration, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        target,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return retry.Unrecoverable(fmt.Errorf("failed to decode %s %s response: %w", method, target, err))
	}
	return nil
}

func retryPolicy(method string) func(error) bool {
	if method == http.MethodGet || method == http.MethodHead {
		return isRetryable
	}
	return isRetryableUnsent
}

func isRetryable(err error) bool {
	if !retry.IsRecoverable(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// isRetryableUnsent accepts a 429 or a failure to connect, so a remove or grab
// is never sent twice.
func isRetryableUnsent(err error) bool {
	if !retry.IsRecoverable(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
