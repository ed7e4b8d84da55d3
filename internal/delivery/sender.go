package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Result is a partner response. Body is truncated to the configured cap.
type Result struct {
	StatusCode int
	Body       string
}

// Sender performs the outbound HTTP call. Satisfied by HTTPSender; tests
// substitute a fake.
type Sender interface {
	Send(ctx context.Context, method, rawURL, contentType string, headers map[string]string, body []byte) (Result, error)
}

// HTTPSender sends deliveries over HTTP. Redirects are never followed: a
// redirect response is returned as-is and counts as a rejection, so a partner
// cannot bounce a validated request onto an internal address.
type HTTPSender struct {
	client  *http.Client
	bodyCap int64
}

// NewHTTPSender creates a sender with the given per-request timeout and
// response body cap in bytes.
func NewHTTPSender(timeout time.Duration, bodyCap int64) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		bodyCap: bodyCap,
	}
}

// Client returns the underlying HTTP client, shared with the OAuth2 token
// exchange so token calls get the same timeout and redirect policy.
func (s *HTTPSender) Client() *http.Client {
	return s.client
}

// Send performs the request and reads at most bodyCap bytes of the response.
func (s *HTTPSender) Send(ctx context.Context, method, rawURL, contentType string, headers map[string]string, body []byte) (Result, error) {
	if method == "" {
		method = http.MethodPost
	}
	if contentType == "" {
		contentType = "application/json"
	}

	var reader io.Reader
	if method != http.MethodGet {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return Result{}, fmt.Errorf("%w: building request: %v", ErrTransport, err)
	}
	if method == http.MethodGet {
		req.URL.RawQuery = mergeQuery(req.URL, body)
	} else {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	capped, err := io.ReadAll(io.LimitReader(resp.Body, s.bodyCap))
	if err != nil {
		return Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	return Result{StatusCode: resp.StatusCode, Body: string(capped)}, nil
}

// mergeQuery folds a JSON object payload into the query string for partners
// that take leads via GET.
func mergeQuery(u *url.URL, body []byte) string {
	fields, err := decodeFlatObject(body)
	if err != nil {
		return u.RawQuery
	}
	q := u.Query()
	for k, v := range fields {
		q.Set(k, v)
	}
	return q.Encode()
}

func decodeFlatObject(body []byte) (map[string]string, error) {
	fields := make(map[string]string)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
