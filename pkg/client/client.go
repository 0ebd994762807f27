package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/osvaldoandrade/collageq/internal/tracing"
	"github.com/osvaldoandrade/collageq/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrTooFewFiles rejects a submission before any network call is made.
var ErrTooFewFiles = errors.New("at least 2 images are required")

const minFiles = 2

// APIError is a non-2xx backend response. Message carries the body's detail
// text (or the rate-limit error text), which is what the user should see in
// place of the bare status code.
type APIError struct {
	StatusCode  int
	Message     string
	RateLimited bool
	RetryAfter  time.Duration
}

func (e *APIError) Error() string { return e.Message }

// Options configures the collage backend client.
type Options struct {
	BaseURL  string
	Username string
	Password string

	HTTPClient     *http.Client
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the collage-generation backend.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		username:   strings.TrimSpace(opts.Username),
		password:   opts.Password,
		httpClient: httpClient,
		logger:     logger,
		tracer:     otel.Tracer("collageq/client"),
	}, nil
}

// BaseURL returns the normalized backend address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// FilePart is one image copied into a multipart request body.
type FilePart struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// request performs one HTTP call. Non-2xx responses come back as *APIError.
func (c *Client) request(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, nil, decodeAPIError(resp, raw)
	}
	return raw, resp.Header, nil
}

func (c *Client) requestJSON(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	raw, _, err := c.request(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError maps the backend error contract onto APIError: generic
// errors carry {detail}, HTTP 429 carries {error} plus a Retry-After header.
func decodeAPIError(resp *http.Response, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RateLimited = true
		var body struct {
			Error             string `json:"error"`
			RetryAfterSeconds int    `json:"retryAfterSeconds"`
		}
		if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
			apiErr.Message = body.Error
		}
		retryAfter := body.RetryAfterSeconds
		if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		if retryAfter > 0 {
			apiErr.RetryAfter = time.Duration(retryAfter) * time.Second
		}
	} else {
		var body struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
			apiErr.Message = body.Detail
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// outcome labels an error for metrics.
func outcome(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RateLimited {
		return "rate_limited"
	}
	return "error"
}

func multipartBody(fields []domain.FormField, parts []FilePart) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	for _, p := range parts {
		var (
			fw  io.Writer
			err error
		)
		if p.ContentType != "" {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(p.Name)))
			h.Set("Content-Type", p.ContentType)
			fw, err = w.CreatePart(h)
		} else {
			fw, err = w.CreateFormFile("files", p.Name)
		}
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", p.Name, err)
		}
		if _, err := io.Copy(fw, p.Reader); err != nil {
			return nil, "", fmt.Errorf("copy %s: %w", p.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func formBody(fields []domain.FormField) io.Reader {
	form := url.Values{}
	for _, f := range fields {
		form.Set(f.Name, f.Value)
	}
	return strings.NewReader(form.Encode())
}
