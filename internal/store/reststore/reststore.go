// Package reststore implements store.Store against a PostgREST-style HTTP API.
package reststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"

	"github.com/at-ishikawa/lessonquiz/internal/store"
)

// TokenFunc returns the bearer credential of the caller bound to ctx, if any.
type TokenFunc func(ctx context.Context) (string, bool)

// Config holds the connection settings of a Client.
type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	MaxRetryAttempts uint
}

// Client talks to /rest/v1/<collection>.
type Client struct {
	httpClient       *resty.Client
	apiKey           string
	token            TokenFunc
	maxRetryAttempts uint
}

// Option configures a Client.
type Option func(*Client)

// WithTokenFunc authorizes requests with the caller's credential instead of the API key.
func WithTokenFunc(fn TokenFunc) Option {
	return func(c *Client) {
		c.token = fn
	}
}

// NewClient creates a Client. A client built with the service key and no TokenFunc acts as the privileged path.
func NewClient(cfg Config, opts ...Option) *Client {
	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/") + "/rest/v1")
	httpClient.SetHeader("apikey", cfg.APIKey)
	httpClient.SetHeader("Content-Type", "application/json")
	httpClient.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	client := &Client{
		httpClient:       httpClient,
		apiKey:           cfg.APIKey,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (client *Client) Close() error {
	return client.httpClient.Close()
}

// ResponseError is a non-2xx answer from the API.
type ResponseError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("response error %d: code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

func (e *ResponseError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func newResponseError(response *resty.Response) error {
	respErr := &ResponseError{StatusCode: response.StatusCode()}
	if body := response.String(); body != "" {
		if err := json.Unmarshal([]byte(body), respErr); err != nil {
			respErr.Message = body
		}
	}

	switch {
	case respErr.StatusCode == http.StatusConflict || respErr.Code == "23505":
		return fmt.Errorf("%w: %v", store.ErrConflict, respErr)
	case respErr.StatusCode == http.StatusUnauthorized ||
		respErr.StatusCode == http.StatusForbidden ||
		respErr.Code == "42501":
		return fmt.Errorf("%w: %v", store.ErrPermissionDenied, respErr)
	}
	return respErr
}

// isRetryableError reports whether a read may be repeated.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.retryable()
	}
	// Transport failures never produced a response.
	return !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrPermissionDenied)
}

func (client *Client) request(ctx context.Context) *resty.Request {
	bearer := client.apiKey
	if client.token != nil {
		if token, ok := client.token(ctx); ok && token != "" {
			bearer = token
		}
	}
	return client.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+bearer)
}

// Find reads rows. Transient failures are retried with exponential backoff.
func (client *Client) Find(ctx context.Context, collection string, query store.Query) ([]store.Record, error) {
	if err := store.ValidateIdentifier(collection); err != nil {
		return nil, err
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	params := filterValues(query.Filters)
	if len(query.Order) > 0 {
		parts := make([]string, len(query.Order))
		for i, o := range query.Order {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if query.Limit > 0 {
		params.Set("limit", fmt.Sprint(query.Limit))
	}

	var result []store.Record
	if err := retry.Do(
		func() error {
			rows, err := client.find(ctx, collection, params)
			if err != nil {
				if !isRetryableError(err) {
					return retry.Unrecoverable(err)
				}
				slog.Default().DebugContext(ctx, "retrying store read",
					"collection", collection,
					"error", err)
				return err
			}
			result = rows
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(client.maxRetryAttempts+1),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	); err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return result, nil
}

func (client *Client) find(ctx context.Context, collection string, params url.Values) ([]store.Record, error) {
	response, err := client.request(ctx).
		SetQueryString(params.Encode()).
		SetResult(&[]store.Record{}).
		Get("/" + collection)
	if err != nil {
		return nil, fmt.Errorf("httpClient.Get > %w", err)
	}
	if response.IsError() {
		return nil, newResponseError(response)
	}
	return resultRows(response)
}

// Insert creates a row. It is never retried: a lost response could otherwise turn into a false conflict.
func (client *Client) Insert(ctx context.Context, collection string, record store.Record) (store.Record, error) {
	if err := store.ValidateIdentifier(collection); err != nil {
		return nil, err
	}

	response, err := client.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(record).
		SetResult(&[]store.Record{}).
		Post("/" + collection)
	if err != nil {
		return nil, fmt.Errorf("httpClient.Post > %w", err)
	}
	if response.IsError() {
		return nil, fmt.Errorf("insert into %s: %w", collection, newResponseError(response))
	}

	rows, err := resultRows(response)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return record, nil
	}
	return rows[0], nil
}

// Update patches the rows matching filters. The filters form the precondition of the write.
func (client *Client) Update(ctx context.Context, collection string, filters []store.Condition, patch store.Record) ([]store.Record, error) {
	if err := store.ValidateIdentifier(collection); err != nil {
		return nil, err
	}
	if err := store.ValidateConditions(filters); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("update %s: refusing an unfiltered update", collection)
	}

	response, err := client.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryString(filterValues(filters).Encode()).
		SetBody(patch).
		SetResult(&[]store.Record{}).
		Patch("/" + collection)
	if err != nil {
		return nil, fmt.Errorf("httpClient.Patch > %w", err)
	}
	if response.IsError() {
		return nil, fmt.Errorf("update %s: %w", collection, newResponseError(response))
	}
	rows, err := resultRows(response)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []store.Record{}
	}
	return rows, nil
}

func resultRows(response *resty.Response) ([]store.Record, error) {
	if response.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	rows, ok := response.Result().(*[]store.Record)
	if !ok || rows == nil {
		var decoded []store.Record
		if err := json.Unmarshal([]byte(response.String()), &decoded); err != nil {
			return nil, fmt.Errorf("json.Unmarshal(%s) > %w", response.String(), err)
		}
		return decoded, nil
	}
	return *rows, nil
}

func filterValues(filters []store.Condition) url.Values {
	params := url.Values{}
	for _, f := range filters {
		switch f.Op {
		case store.OpEq:
			params.Add(f.Column, "eq."+formatValue(f.Value))
		case store.OpIn:
			values := make([]string, len(f.Values))
			for i, v := range f.Values {
				values[i] = quote(formatValue(v))
			}
			params.Add(f.Column, "in.("+strings.Join(values, ",")+")")
		case store.OpIsNull:
			params.Add(f.Column, "is.null")
		}
	}
	return params
}

func formatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x != nil {
			return x.UTC().Format(time.RFC3339Nano)
		}
		return "null"
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// quote wraps values that contain list delimiters.
func quote(s string) string {
	if strings.ContainsAny(s, `,()"\ `) {
		return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
	}
	return s
}
