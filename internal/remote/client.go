// Package remote implements the client side of the Gaply remote service
// contract: bearer-token authenticated REST endpoints with idempotent
// upserts and deletes by id.
//
// Failure classification drives the sync phases: transport errors and 5xx
// responses are retryable (with exponential backoff), 404 is terminal for
// the item, and 401 triggers exactly one token refresh before giving up
// with an authentication error.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// TokenProvider supplies the opaque bearer token. Refresh is invoked at
// most once per request, after the remote rejects the current token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Client talks to the remote service.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	logger  *log.Logger

	// maxRetries bounds backoff attempts per request.
	maxRetries uint64
}

// New creates a remote client. If httpClient is nil a client with a
// 30-second timeout is used.
func New(baseURL string, tokens TokenProvider, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       httpClient,
		tokens:     tokens,
		logger:     logger,
		maxRetries: 3,
	}
}

// Authenticated reports whether a usable bearer token is currently
// available. It never hits the network; the token's acceptance is only
// known once a request runs.
func (c *Client) Authenticated(ctx context.Context) bool {
	if c.tokens == nil {
		return false
	}
	token, err := c.tokens.Token(ctx)
	return err == nil && token != ""
}

// resourcePath maps entity tables onto remote resource paths.
func resourcePath(table string) (string, error) {
	switch table {
	case schema.TableTasks:
		return "/tasks", nil
	case schema.TableGaps:
		return "/gaps", nil
	case schema.TablePreferences:
		return "/preferences", nil
	case schema.TableProfile:
		return "/profile", nil
	case schema.TableScheduled:
		return "/scheduled-gaps", nil
	case schema.TableCompletions:
		return "/activity-completions", nil
	}
	return "", fmt.Errorf("no remote resource for table %q", table)
}

// PullChanges fetches remote records of one table changed since the given
// timestamp. A zero since fetches everything.
func (c *Client) PullChanges(ctx context.Context, table string, since time.Time) ([]schema.Record, error) {
	path, err := resourcePath(table)
	if err != nil {
		return nil, err
	}
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	}

	body, err := c.doRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return decodeRecords(table, body)
}

// PushDelta sends one delta to the remote service. Upserts are POSTed to
// the collection (PUT by id for scheduled gaps); deletes go through
// DeleteRecord.
func (c *Client) PushDelta(ctx context.Context, delta *schema.Delta) error {
	if delta.Operation == schema.OpDelete {
		return c.DeleteRecord(ctx, delta.Table, delta.ID)
	}

	path, err := resourcePath(delta.Table)
	if err != nil {
		return err
	}

	method := http.MethodPost
	if delta.Table == schema.TableScheduled {
		method = http.MethodPut
		path += "/" + url.PathEscape(delta.ID)
	}

	_, err = c.doRetry(ctx, method, path, delta.Payload)
	return err
}

// DeleteRecord asks the remote service to delete a record by id. A remote
// 404 is treated as success: the record is already gone.
func (c *Client) DeleteRecord(ctx context.Context, table, id string) error {
	path, err := resourcePath(table)
	if err != nil {
		return err
	}

	_, err = c.doRetry(ctx, http.MethodDelete, path+"/"+url.PathEscape(id), nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Ping performs an unauthenticated reachability check against the service
// root. Used by the network monitor.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &schema.NetworkError{Op: "ping", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// doRetry wraps do with exponential backoff for retryable failures.
func (c *Client) doRetry(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body []byte

	op := func() error {
		b, err := c.do(ctx, method, path, payload)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Printf("%s %s failed, retrying in %s: %v", method, path, wait.Round(time.Millisecond), err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

// do performs one authenticated request, refreshing the token once on 401.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		return nil, &schema.AuthError{Reason: "no session token available"}
	}

	body, status, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		token, err = c.tokens.Refresh(ctx)
		if err != nil || token == "" {
			return nil, &schema.AuthError{Reason: "session refresh failed"}
		}
		body, status, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &schema.AuthError{Reason: "token rejected after refresh"}
		}
	}

	switch {
	case status >= 200 && status < 300:
		return body, nil
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, schema.ErrNotFound)
	default:
		// doRetry decides retryability from the status.
		return nil, &statusError{status: status, method: method, path: path}
	}
}

// send issues the HTTP request and slurps the response body.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &schema.NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, 0, &schema.NetworkError{Op: method + " " + path, Err: err}
	}
	return body, resp.StatusCode, nil
}

// decodeRecords parses a remote response body: an array of records, or a
// single object for singleton resources (preferences, profile).
func decodeRecords(table string, body []byte) ([]schema.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", table, err)
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}

	records := make([]schema.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := schema.NewRecord(table)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", table, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
