// Package dpd is a client for Health Canada's Drug Product Database (DPD) REST API.
// It exposes the three read endpoints the medication lookup needs: the product
// directory, active ingredients (by name or drug code) and dosage forms.
package dpd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/giygas/rxwriter/dpd/entities"
	"github.com/giygas/rxwriter/interfaces"
	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/metrics"
	"github.com/juju/ratelimit"
	"golang.org/x/text/encoding/charmap"
)

// Compile-time check to ensure Client implements DrugDirectory
var _ interfaces.DrugDirectory = (*Client)(nil)

const (
	endpointProducts    = "drugproduct"
	endpointIngredients = "activeingredient"
	endpointForms       = "form"

	userAgent = "rxwriter/1.0"
)

// ErrUnexpectedStatus is wrapped by StatusError for any non-2xx answer
var ErrUnexpectedStatus = errors.New("unexpected status from drug product database")

// StatusError reports the endpoint and HTTP status of a failed call
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Options configures a Client
type Options struct {
	BaseURL    string
	Lang       string        // "en" or "fr"
	Timeout    time.Duration // 0 disables the client timeout
	Rate       float64       // outbound requests per second, 0 disables throttling
	Burst      int64
	HTTPClient *http.Client // optional, overrides Timeout
}

// Client talks to the DPD API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	lang       string
	httpClient *http.Client
	limiter    *ratelimit.Bucket

	lastSuccess atomic.Int64 // unix nano
	lastFailure atomic.Int64 // unix nano
	lastError   atomic.Value // string
}

// NewClient validates opts and builds a client
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DPD base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid DPD base URL %q: must be absolute", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	lang := opts.Lang
	if lang == "" {
		lang = "en"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL:    base,
		lang:       lang,
		httpClient: httpClient,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = ratelimit.NewBucketWithRate(opts.Rate, burst)
	}
	c.lastError.Store("")

	return c, nil
}

// Products fetches the full drug product directory
func (c *Client) Products(ctx context.Context) ([]entities.Product, error) {
	return fetch[entities.Product](ctx, c, endpointProducts, nil)
}

// IngredientsByName fetches the active ingredient records whose ingredient name matches name
func (c *Client) IngredientsByName(ctx context.Context, name string) ([]entities.ActiveIngredient, error) {
	return fetch[entities.ActiveIngredient](ctx, c, endpointIngredients, url.Values{"ingredientname": {name}})
}

// IngredientsByCode fetches the active ingredients of one drug product
func (c *Client) IngredientsByCode(ctx context.Context, drugCode int) ([]entities.ActiveIngredient, error) {
	return fetch[entities.ActiveIngredient](ctx, c, endpointIngredients, url.Values{"id": {strconv.Itoa(drugCode)}})
}

// Forms fetches the dosage forms of one drug product
func (c *Client) Forms(ctx context.Context, drugCode int) ([]entities.DosageForm, error) {
	return fetch[entities.DosageForm](ctx, c, endpointForms, url.Values{"id": {strconv.Itoa(drugCode)}})
}

// Status reports the outcome of the most recent calls, for health checks
func (c *Client) Status() interfaces.DirectoryStatus {
	status := interfaces.DirectoryStatus{}
	if ns := c.lastSuccess.Load(); ns != 0 {
		status.LastSuccess = time.Unix(0, ns)
	}
	if ns := c.lastFailure.Load(); ns != 0 {
		status.LastFailure = time.Unix(0, ns)
	}
	status.LastError, _ = c.lastError.Load().(string)
	return status
}

// endpointURL builds <base>/<endpoint>/?lang=..&type=json&<params>
func (c *Client) endpointURL(endpoint string, params url.Values) string {
	u := c.baseURL.ResolveReference(&url.URL{Path: endpoint + "/"})
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("lang", c.lang)
	q.Set("type", "json")
	u.RawQuery = q.Encode()
	return u.String()
}

// wait blocks until the outbound bucket grants a token or ctx is done
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	d := c.limiter.Take(1)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func fetch[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	start := time.Now()
	records, err := get[T](ctx, c, endpoint, params)
	metrics.DPDRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.DPDRequestsTotal.WithLabelValues(endpoint, "success").Inc()
		c.lastSuccess.Store(time.Now().UnixNano())
	case errors.Is(err, context.Canceled):
		// Superseded searches are not gateway failures
		metrics.DPDRequestsTotal.WithLabelValues(endpoint, "canceled").Inc()
	default:
		metrics.DPDRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		c.lastFailure.Store(time.Now().UnixNano())
		c.lastError.Store(err.Error())
	}

	return records, err
}

func get[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(endpoint, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "endpoint", endpoint, "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response body: %w", endpoint, err)
	}

	records, err := decodeRecords[T](body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return records, nil
}

// decodeRecords accepts a JSON array, a single object, or an empty body.
// Bodies that are not valid UTF-8 are read as ISO-8859-1.
func decodeRecords[T any](body []byte) ([]T, error) {
	if !utf8.Valid(body) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ISO-8859-1 body: %w", err)
		}
		body = decoded
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	if body[0] == '{' {
		var record T
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, err
		}
		return []T{record}, nil
	}

	var records []T
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}
