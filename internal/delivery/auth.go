package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"leadflow_backend/internal/partners"
)

// RequestAuth is the outcome of applying an auth strategy: the final URL to
// call and the headers to attach. Strategies never mutate the payload body.
type RequestAuth struct {
	URL     string
	Headers map[string]string
}

// Strategy authorizes a single outbound delivery request.
type Strategy interface {
	Authorize(ctx context.Context, endpoint string) (RequestAuth, error)
}

// NewStrategy builds the strategy declared by the partner's delivery config.
// Unknown strategy names and missing required fields return ErrAuthSetup;
// such deliveries are recorded as failed without any network activity.
func NewStrategy(cfg partners.DeliveryConfig, tokenClient *http.Client) (Strategy, error) {
	ac := cfg.AuthConfig

	switch cfg.AuthStrategy {
	case partners.AuthNone, "":
		return noneStrategy{}, nil

	case partners.AuthBearer:
		token, err := requireField(ac, "token")
		if err != nil {
			return nil, err
		}
		return headerStrategy{headers: map[string]string{"Authorization": "Bearer " + token}}, nil

	case partners.AuthAPIKey:
		key, err := requireField(ac, "key")
		if err != nil {
			return nil, err
		}
		header := ac["header"]
		if header == "" {
			header = "X-API-Key"
		}
		return headerStrategy{headers: map[string]string{header: key}}, nil

	case partners.AuthBasic:
		user, err := requireField(ac, "username")
		if err != nil {
			return nil, err
		}
		pass, err := requireField(ac, "password")
		if err != nil {
			return nil, err
		}
		cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		return headerStrategy{headers: map[string]string{"Authorization": "Basic " + cred}}, nil

	case partners.AuthCustomHeader:
		if len(ac) == 0 {
			return nil, fmt.Errorf("%w: custom_header requires at least one header pair", ErrAuthSetup)
		}
		headers := make(map[string]string, len(ac))
		for k, v := range ac {
			if strings.TrimSpace(k) == "" || v == "" {
				return nil, fmt.Errorf("%w: custom_header entries must be non-empty", ErrAuthSetup)
			}
			headers[k] = v
		}
		return headerStrategy{headers: headers}, nil

	case partners.AuthQueryParam:
		param, err := requireField(ac, "param")
		if err != nil {
			return nil, err
		}
		value, err := requireField(ac, "value")
		if err != nil {
			return nil, err
		}
		return queryParamStrategy{param: param, value: value}, nil

	case partners.AuthOAuth2:
		tokenURL, err := requireField(ac, "tokenUrl")
		if err != nil {
			return nil, err
		}
		clientID, err := requireField(ac, "clientId")
		if err != nil {
			return nil, err
		}
		clientSecret, err := requireField(ac, "clientSecret")
		if err != nil {
			return nil, err
		}
		return &oauth2Strategy{
			tokenURL:     tokenURL,
			clientID:     clientID,
			clientSecret: clientSecret,
			scope:        ac["scope"],
			client:       tokenClient,
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown strategy %q", ErrAuthSetup, cfg.AuthStrategy)
}

func requireField(ac map[string]string, name string) (string, error) {
	v := ac[name]
	if v == "" {
		return "", fmt.Errorf("%w: missing %q in auth config", ErrAuthSetup, name)
	}
	return v, nil
}

type noneStrategy struct{}

func (noneStrategy) Authorize(_ context.Context, endpoint string) (RequestAuth, error) {
	return RequestAuth{URL: endpoint, Headers: map[string]string{}}, nil
}

type headerStrategy struct {
	headers map[string]string
}

func (s headerStrategy) Authorize(_ context.Context, endpoint string) (RequestAuth, error) {
	headers := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		headers[k] = v
	}
	return RequestAuth{URL: endpoint, Headers: headers}, nil
}

type queryParamStrategy struct {
	param string
	value string
}

func (s queryParamStrategy) Authorize(_ context.Context, endpoint string) (RequestAuth, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return RequestAuth{}, fmt.Errorf("%w: unparseable endpoint", ErrAuthSetup)
	}
	q := u.Query()
	q.Set(s.param, s.value)
	u.RawQuery = q.Encode()
	return RequestAuth{URL: u.String(), Headers: map[string]string{}}, nil
}

// oauth2Strategy performs a client-credentials token exchange per delivery.
// The token endpoint is SSRF-validated by the service before Authorize runs.
type oauth2Strategy struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	client       *http.Client
}

// TokenURL exposes the token endpoint so the caller can SSRF-validate it.
func (s *oauth2Strategy) TokenURL() string {
	return s.tokenURL
}

func (s *oauth2Strategy) Authorize(ctx context.Context, endpoint string) (RequestAuth, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	if s.scope != "" {
		form.Set("scope", s.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return RequestAuth{}, fmt.Errorf("%w: building token request: %v", ErrAuthSetup, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return RequestAuth{}, fmt.Errorf("%w: token endpoint unreachable: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return RequestAuth{}, fmt.Errorf("%w: reading token response: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RequestAuth{}, fmt.Errorf("%w: token endpoint returned %d", ErrAuthSetup, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return RequestAuth{}, fmt.Errorf("%w: token endpoint returned no access_token", ErrAuthSetup)
	}

	return RequestAuth{
		URL:     endpoint,
		Headers: map[string]string{"Authorization": "Bearer " + tok.AccessToken},
	}, nil
}
