package apiclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/RekaTrack/internal/apperr"
	"github.com/pkg/errors"
)

const DefaultTimeout = 15 * time.Second

// TokenStore is the session store as seen by the client.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	ClearToken(ctx context.Context) error
}

type Client struct {
	baseURL string
	tokens  TokenStore
	timeout time.Duration
	httpc   *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	}
}

// New builds a client for baseURL. tokens may be nil (no Authorization header).
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		timeout: DefaultTimeout,
		httpc:   &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Request struct {
	Method   string
	Endpoint string
	Body     RequestBody
	Headers  map[string]string
	// Timeout overrides the client default for this call.
	Timeout time.Duration
}

func (c *Client) Get(ctx context.Context, endpoint string) (Body, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint})
}

func (c *Client) PostJSON(ctx context.Context, endpoint string, v any) (Body, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: JSONBody{Value: v}})
}

func (c *Client) PostMultipart(ctx context.Context, endpoint string, mb MultipartBody) (Body, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: mb})
}

// Do performs a single attempt. Errors are always *apperr.Error.
func (c *Client) Do(ctx context.Context, req Request) (Body, error) {
	body, err := c.do(ctx, req)
	if err != nil {
		status := 0
		if e, ok := apperr.As(err); ok {
			status = e.Status
		}
		slog.Error("api request failed",
			"method", req.Method, "endpoint", req.Endpoint, "status", status, "error", err.Error())
	}
	return body, err
}

func (c *Client) do(ctx context.Context, req Request) (Body, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token := ""
	if c.tokens != nil {
		t, err := c.tokens.Token(reqCtx)
		if err != nil {
			return Body{}, apperr.Network(errors.Wrap(err, "read session token"))
		}
		token = t
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		rdr         io.Reader
		contentType string
		multipart   bool
	)
	if req.Body != nil {
		r, ct, err := req.Body.encode()
		if err != nil {
			return Body{}, apperr.Network(err)
		}
		rdr, contentType = r, ct
		_, multipart = req.Body.(MultipartBody)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+req.Endpoint, rdr)
	if err != nil {
		return Body{}, apperr.Network(errors.Wrap(err, "new request"))
	}

	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range req.Headers {
		if multipart && http.CanonicalHeaderKey(k) == "Content-Type" {
			continue
		}
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return Body{}, classifyTransport(reqCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Body{}, classifyTransport(reqCtx, err)
	}
	body := parseBody(raw)

	if resp.StatusCode == http.StatusUnauthorized {
		// токен чистим уже после ответа и независимо от таймаута запроса
		if c.tokens != nil {
			if err := c.tokens.ClearToken(context.WithoutCancel(ctx)); err != nil {
				slog.Error("clear session token", "error", err.Error())
			}
		}
		return body, apperr.Unauthorized(body.Value())
	}

	if resp.StatusCode/100 != 2 {
		return body, apperr.Server(resp.StatusCode, body.Message(), body.Value())
	}

	return body, nil
}

func classifyTransport(reqCtx context.Context, err error) error {
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout("")
	}
	return apperr.Network(err)
}
