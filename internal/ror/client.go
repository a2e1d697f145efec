// Package ror implements the client side of the ROR organizations search
// API: a multi-phase lookup that resolves one free-text affiliation to at
// most one ROR identifier, with retry, backoff, and rate-limit handling.
package ror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const defaultMaxAttempts = 3

// searchResponse is the subset of the ROR search payload the client needs.
type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Chosen       bool                `json:"chosen"`
	Organization *searchOrganization `json:"organization"`
}

type searchOrganization struct {
	ID string `json:"id"`
}

// StatusError is a non-2xx registry response. 5xx codes drive the phase
// fallback in Resolve; everything else is terminal for the call.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// ServerError reports whether the status is a 5xx.
func (e *StatusError) ServerError() bool {
	return e.Code >= 500
}

func isServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.ServerError()
}

// Client queries the ROR search endpoint. A single Client is shared by all
// concurrent resolutions; its permit pool is the sole concurrency throttle
// of the whole batch, and a permit is held for the entire multi-phase
// lifetime of one Resolve call, retries included.
type Client struct {
	httpClient *http.Client
	baseURL    string
	sem        *semaphore.Weighted
	logger     *zap.Logger

	// backoffUnit is the base delay for exponential backoff. Tests shrink it.
	backoffUnit time.Duration
	maxAttempts int
}

// New builds a client for the registry at baseURL. concurrency bounds the
// number of in-flight resolutions, timeout applies to each HTTP request.
func New(baseURL string, concurrency int, timeout time.Duration, logger *zap.Logger) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		logger:      logger,
		backoffUnit: time.Second,
		maxAttempts: defaultMaxAttempts,
	}
}

// phase describes one query shape of the multi-phase lookup protocol.
type phase struct {
	quoted bool // wrap the affiliation in double quotes (phrase match)
	single bool // restrict to the registry's single best match mode
}

// Resolve runs the lookup protocol for one affiliation.
//
// Phase 1 issues a quoted single-best-match query. Phase 2 retries that
// query unquoted, but only when the registry answered phase 1 with a server
// error (some phrases reliably 500 when quoted). Phase 3, enabled by
// broadFallback, drops the single-best-match restriction, quoted first and
// unquoted if the quoted form errors.
//
// Returns the identifier and found=true when some phase produced a chosen
// candidate, found=false when the registry was reachable but nothing
// matched, and a non-nil error for terminal failures.
func (c *Client) Resolve(ctx context.Context, affiliation string, broadFallback bool) (string, bool, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", false, fmt.Errorf("acquire permit: %w", err)
	}
	defer c.sem.Release(1)

	id, err := c.search(ctx, affiliation, phase{quoted: true, single: true})
	switch {
	case err == nil && id != "":
		return id, true, nil
	case isServerError(err):
		id, err = c.search(ctx, affiliation, phase{quoted: false, single: true})
		if err == nil && id != "" {
			return id, true, nil
		}
		if err != nil && !broadFallback {
			return "", false, err
		}
	case err != nil:
		if !broadFallback {
			return "", false, err
		}
	}

	if !broadFallback {
		return "", false, nil
	}

	id, err = c.search(ctx, affiliation, phase{quoted: true, single: false})
	if err != nil {
		id, err = c.search(ctx, affiliation, phase{quoted: false, single: false})
	}
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

// searchURL builds the organizations query for one phase. The quotes are
// part of the affiliation parameter value; single_search is a bare flag.
func (c *Client) searchURL(affiliation string, p phase) string {
	value := affiliation
	if p.quoted {
		value = `"` + affiliation + `"`
	}
	u := c.baseURL + "/v2/organizations?affiliation=" + url.QueryEscape(value)
	if p.single {
		u += "&single_search"
	}
	return u
}

// search issues one logical request and applies the per-request retry
// policy: transport errors retry with exponential backoff up to the attempt
// budget, 429 sleeps for the server's Retry-After hint (or backoff) and
// retries within the same budget, 5xx and other non-2xx statuses surface
// immediately as *StatusError for the caller to interpret.
func (c *Client) search(ctx context.Context, affiliation string, p phase) (string, error) {
	reqURL := c.searchURL(affiliation, p)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.maxAttempts-1 {
				wait := c.backoff(attempt)
				c.logger.Warn("registry request error, retrying",
					zap.Duration("wait", wait),
					zap.Error(err))
				if err := c.sleep(ctx, wait); err != nil {
					return "", err
				}
				continue
			}
			return "", lastErr
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if attempt < c.maxAttempts-1 {
				if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
					return "", err
				}
				continue
			}
			return "", lastErr
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var sr searchResponse
			if err := json.Unmarshal(body, &sr); err != nil {
				return "", fmt.Errorf("decode response: %w", err)
			}
			return chosenID(sr), nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp, c.backoff(attempt))
			c.logger.Warn("rate limited by registry", zap.Duration("wait", wait))
			lastErr = &StatusError{Code: resp.StatusCode}
			if err := c.sleep(ctx, wait); err != nil {
				return "", err
			}
			continue

		default:
			return "", &StatusError{Code: resp.StatusCode}
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// chosenID extracts the identifier of the candidate the registry itself
// flagged as chosen. The client never guesses among unflagged candidates.
func chosenID(sr searchResponse) string {
	for _, item := range sr.Items {
		if item.Chosen && item.Organization != nil {
			return item.Organization.ID
		}
	}
	return ""
}

// retryAfter returns the 429 wait: the Retry-After header in seconds when
// present and parseable, otherwise the supplied backoff.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffUnit << uint(attempt)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
