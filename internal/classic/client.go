package classic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ErrTimeout is returned when the legacy system does not answer within the
// configured budget. Callers treat it as a final outcome: the legacy endpoints
// are not presumed idempotent, so the client never retries on its own.
var ErrTimeout = errors.New("classic: request timed out")

// Client issues outbound requests to the legacy classic system. It holds no
// state beyond the underlying http.Client and is safe for concurrent use.
type Client struct {
	http *http.Client
}

// NewClient returns a Client whose every request is bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// Login emulates the classic login form: a POST to loginURL with the
// credentials as query parameters, exactly as the legacy endpoint expects.
// The returned Response is raw; classification belongs to Interpret.
func (c *Client) Login(ctx context.Context, loginURL, email, password string) (*Response, error) {
	params := url.Values{}
	params.Set("man_cmd", "elogin")
	params.Set("man_email", email)
	params.Set("man_passwd", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("classic: building login request: %w", err)
	}
	return c.do(req)
}

// Fetch performs an authorized GET against an already-expanded legacy URL
// (libraries or feed). The session context is baked into the URL by the
// caller; the client adds nothing.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("classic: building fetch request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, req.URL.Host)
		}
		return nil, fmt.Errorf("classic: %s %s: %w", req.Method, req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, req.URL.Host)
		}
		return nil, fmt.Errorf("classic: reading response from %s: %w", req.URL.Host, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
