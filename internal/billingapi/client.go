// Package billingapi is a thin client for the billing provider's REST API.
//
// Fetch returns typed errors. The endpoint helpers (ListCustomers and
// friends) log those errors and return an empty result instead, so callers
// treat "no data" as an already-reported outcome.
package billingapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"github.com/dvloznov/billing-reporter/internal/billing"
	"github.com/dvloznov/billing-reporter/internal/logger"
)

const defaultTimeout = 30 * time.Second

// Doer performs one HTTP round trip. *fasthttp.Client satisfies it.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// Client holds the base URL and bearer credential for the API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    Doer
}

// Option configures a Client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.http = d
	}
}

// NewClient creates a client for baseURL (e.g. https://api.example.com/v1).
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: defaultTimeout,
		http: &fasthttp.Client{
			Name:                "billing-reporter",
			MaxIdleConnDuration: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Params are query parameters passed through to the API unchanged,
// including pagination (limit, next_page).
type Params map[string]string

// Page is one page of results. NextPage is empty on the last page.
type Page[T any] struct {
	Data     []T
	NextPage string
}

type listEnvelope struct {
	Data     []json.RawMessage `json:"data"`
	NextPage *string           `json:"next_page"`
}

type itemEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// Fetch performs one call and decodes the "data" array into T, checking
// every record against its schema. A nil body sends no payload.
func Fetch[T billing.Validator](ctx context.Context, c *Client, method, path string, query Params, body any) (Page[T], error) {
	raw, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return Page[T]{}, err
	}

	var env listEnvelope
	if err := decode(path, raw, &env); err != nil {
		return Page[T]{}, err
	}

	records := make([]T, 0, len(env.Data))
	for i, item := range env.Data {
		rec, err := decodeRecord[T](path, fmt.Sprintf("data.%d", i), item)
		if err != nil {
			return Page[T]{}, err
		}
		records = append(records, rec)
	}

	page := Page[T]{Data: records}
	if env.NextPage != nil {
		page.NextPage = *env.NextPage
	}
	return page, nil
}

// FetchOne performs one call whose "data" field is a single record.
func FetchOne[T billing.Validator](ctx context.Context, c *Client, method, path string, query Params) (T, error) {
	var zero T
	raw, err := c.do(ctx, method, path, query, nil)
	if err != nil {
		return zero, err
	}

	var env itemEnvelope
	if err := decode(path, raw, &env); err != nil {
		return zero, err
	}
	return decodeRecord[T](path, "data", env.Data)
}

func decodeRecord[T billing.Validator](path, where string, raw json.RawMessage) (T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		var zero T
		return zero, &FetchError{Kind: KindValidation, Endpoint: path, Err: fmt.Errorf("%s: record missing", where)}
	}
	rec, err := billing.Decode[T](raw)
	if err != nil {
		var verrs billing.ValidationErrors
		if errors.As(err, &verrs) {
			return rec, &FetchError{Kind: KindValidation, Endpoint: path, Err: fmt.Errorf("%s: %w", where, err)}
		}
		return rec, &FetchError{Kind: KindUnexpected, Endpoint: path, Err: fmt.Errorf("%s: decode record: %w", where, err)}
	}
	return rec, nil
}

func decode(path string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &FetchError{Kind: KindValidation, Endpoint: path, Err: err}
		}
		return &FetchError{Kind: KindUnexpected, Endpoint: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query Params, body any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: KindRequestError, Endpoint: path, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/" + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	if len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, v)
		}
		req.URI().SetQueryString(values.Encode())
	}

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &FetchError{Kind: KindUnexpected, Endpoint: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("method", method).
		Str("endpoint", path).
		Msg("billing api request")

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, &FetchError{Kind: KindRequestError, Endpoint: path, Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return nil, &FetchError{
			Kind:     kindForStatus(status),
			Endpoint: path,
			Status:   status,
			Err:      fmt.Errorf("%s", bytes.TrimSpace(truncate(resp.Body(), 256))),
		}
	}

	// resp is released on return.
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
