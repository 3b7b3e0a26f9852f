package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Document is an opaque field bag. The core treats the rest of a document's
// fields as an unordered bag; it only ever inspects "name" and "modified".
type Document map[string]any

// Name returns the document's identifier, or "" if absent or not a string.
func (d Document) Name() string {
	v, _ := d["name"].(string)
	return v
}

// Modified returns the document's last-modified timestamp, or "" if absent.
func (d Document) Modified() string {
	v, _ := d["modified"].(string)
	return v
}

const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "docsync-go/0.1"

	// maxConcurrencyAttempts is the total number of attempts Update makes
	// before surfacing a terminal TimestampMismatch (§4.1).
	maxConcurrencyAttempts = 3
)

// Client is an HTTP client for one document-management endpoint ("cloud" or
// "local"). Identical in shape for both; only base URL and credentials
// differ between instances.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc waits between retries. Defaults to timeSleep; tests override
	// it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client bound to baseURL, authenticating every request
// with "Authorization: token <apiKey>:<apiSecret>" (§6).
func NewClient(baseURL, apiKey, apiSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Get fetches a single document. Returns (nil, nil) if the document does not
// exist (404 is not an error at this layer — callers that need to
// distinguish "absent" from "error" rely on this).
func (c *Client) Get(ctx context.Context, doctype, name string) (Document, error) {
	path := fmt.Sprintf("/api/resource/%s/%s", url.PathEscape(doctype), url.PathEscape(name))

	resp, err := c.doRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}

		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data Document `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("remote: decoding %s response: %w", path, err)
	}

	return envelope.Data, nil
}

// List fetches documents of doctype matching filters, paginated.
func (c *Client) List(ctx context.Context, doctype string, filters map[string]string, limit, offset int) ([]Document, error) {
	q := url.Values{}
	q.Set("limit_page_length", strconv.Itoa(limit))
	q.Set("limit_start", strconv.Itoa(offset))
	q.Set("fields", `["*"]`)

	if len(filters) > 0 {
		b, err := json.Marshal(filtersToConditions(filters))
		if err == nil {
			q.Set("filters", string(b))
		}
	}

	path := fmt.Sprintf("/api/resource/%s?%s", url.PathEscape(doctype), q.Encode())

	resp, err := c.doRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data []Document `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("remote: decoding %s response: %w", path, err)
	}

	return envelope.Data, nil
}

// filtersToConditions converts a flat equality-filter map into the
// [[field, "=", value], ...] shape the remote document API expects.
func filtersToConditions(filters map[string]string) [][]string {
	conditions := make([][]string, 0, len(filters))
	for field, val := range filters {
		conditions = append(conditions, []string{field, "=", val})
	}

	return conditions
}

// Create inserts a new document of doctype with the given fields.
func (c *Client) Create(ctx context.Context, doctype string, fields Document) (Document, error) {
	path := fmt.Sprintf("/api/resource/%s", url.PathEscape(doctype))

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("remote: encoding create body: %w", err)
	}

	resp, err := c.doRetry(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeDataEnvelope(resp.Body, path)
}

// Update writes fields to an existing document, retrying on an optimistic-
// concurrency collision per §4.1: up to maxConcurrencyAttempts total, each
// retry refetching the current document and copying its "modified" value
// into fields before retrying. No backoff between these retries.
func (c *Client) Update(ctx context.Context, doctype, name string, fields Document) (Document, error) {
	path := fmt.Sprintf("/api/resource/%s/%s", url.PathEscape(doctype), url.PathEscape(name))

	attempt := 0

	for {
		attempt++

		body, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("remote: encoding update body: %w", err)
		}

		resp, err := c.doRetry(ctx, http.MethodPut, path, bytes.NewReader(body))
		if err == nil {
			doc, decodeErr := decodeDataEnvelope(resp.Body, path)
			resp.Body.Close()

			return doc, decodeErr
		}

		apiErr, ok := asAPIError(err)
		if !ok || apiErr.Err != ErrTimestampMismatch || attempt >= maxConcurrencyAttempts {
			return nil, err
		}

		c.logger.Warn("timestamp mismatch on update, refetching and retrying",
			slog.String("doctype", doctype),
			slog.String("name", name),
			slog.Int("attempt", attempt),
		)

		current, getErr := c.Get(ctx, doctype, name)
		if getErr != nil {
			return nil, getErr
		}

		if current == nil {
			return nil, &APIError{StatusCode: http.StatusNotFound, Path: path, Message: "document disappeared during retry", Err: ErrNotFound}
		}

		fields["modified"] = current.Modified()
	}
}

// Delete removes a document. A 404 is treated as success (idempotent delete).
func (c *Client) Delete(ctx context.Context, doctype, name string) error {
	path := fmt.Sprintf("/api/resource/%s/%s", url.PathEscape(doctype), url.PathEscape(name))

	resp, err := c.doRetry(ctx, http.MethodDelete, path, nil)
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.StatusCode == http.StatusNotFound {
			return nil
		}

		return err
	}
	defer resp.Body.Close()

	return nil
}

// Ping verifies connectivity and credentials, returning the logged-in
// username (used by the CLI `test` command, §6).
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.doRetry(ctx, http.MethodGet, "/api/method/frappe.auth.get_logged_user", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var envelope struct {
		Message string `json:"message"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("remote: decoding ping response: %w", err)
	}

	return envelope.Message, nil
}

// Hash computes the canonical content hash of doc (§4.1), stripping the
// given extra excluded fields in addition to the defaults.
func (c *Client) Hash(doc Document, excluded []string) string {
	return Hash(doc, excluded)
}

func decodeDataEnvelope(r io.Reader, path string) (Document, error) {
	var envelope struct {
		Data Document `json:"data"`
	}

	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("remote: decoding %s response: %w", path, err)
	}

	return envelope.Data, nil
}

func asAPIError(err error) (*APIError, bool) {
	apiErr, ok := err.(*APIError)
	return apiErr, ok
}

// doRetry is the shared retry loop for all request methods. It retries
// network errors and retryable HTTP statuses with exponential backoff and
// jitter; it does not retry on TimestampMismatch, which is handled by Update.
func (c *Client) doRetry(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	fullURL := c.baseURL + path

	var bodyBytes []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("remote: reading request body: %w", err)
		}

		bodyBytes = b
	}

	var attempt int
	for {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}

		resp, err := c.doOnce(ctx, method, fullURL, reqBody)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("remote: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("remote: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("remote: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("remote: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode, string(errBody)),
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, fullURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
