// Package reportapi implements the signed HTTP client for the remote
// reporting API: login with a TOTP second factor and authenticated
// fetches of channel metrics.
package reportapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"reportsync/internal/config"

	"github.com/rs/zerolog"
)

var (
	// ErrUnauthorized is returned when the API rejects the bearer
	// token; callers must invalidate their session before retrying.
	ErrUnauthorized = errors.New("reportapi: unauthorized")

	// ErrLoginRejected is returned when a login attempt does not yield
	// a usable token.
	ErrLoginRejected = errors.New("reportapi: login rejected")
)

// LoginResult is a successful login response. ExpiresAt is zero when
// the server did not report an expiry.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
}

// Response is a decoded API reply.
type Response struct {
	StatusCode int
	Body       map[string]interface{}
}

type Client struct {
	login      config.LoginConfig
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(login config.LoginConfig, sslVerify bool, logger *zerolog.Logger) *Client {
	transport := http.DefaultTransport
	if !sslVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		login:   login,
		baseURL: login.BaseURL(),
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		logger: logger.With().Str("component", "reportapi").Logger(),
	}
}

// LoginWithCode posts one signed login attempt using the given TOTP
// code. The response is accepted only when one of the known envelope
// shapes yields a non-empty token.
func (c *Client) LoginWithCode(ctx context.Context, code string) (LoginResult, error) {
	body := SignParams(map[string]interface{}{
		"userName": c.login.Username,
		"pwd":      c.login.Password,
		"vCode":    code,
		"language": "zh",
	})

	resp, err := c.post(ctx, c.login.URL, body, "")
	if err != nil {
		return LoginResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return LoginResult{}, fmt.Errorf("%w: status %d", ErrLoginRejected, resp.StatusCode)
	}

	token, ok := ExtractToken(resp.Body)
	if !ok {
		c.logger.Debug().Str("msg", errorMessage(resp.Body)).Msg("login response shape not recognized")
		return LoginResult{}, fmt.Errorf("%w: %s", ErrLoginRejected, errorMessage(resp.Body))
	}

	return LoginResult{Token: token, ExpiresAt: extractExpiry(resp.Body)}, nil
}

// Post sends an authenticated, signed request to an API endpoint.
// A 401 status or an in-body 401 code maps to ErrUnauthorized.
func (c *Client) Post(ctx context.Context, endpoint string, params map[string]interface{}, token string) (*Response, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	SignParams(params)

	resp, err := c.post(ctx, c.baseURL+endpoint, params, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reportapi: %s returned status %d", endpoint, resp.StatusCode)
	}
	if code, ok := numberField(resp.Body, "code"); ok && int(code) == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]interface{}, token string) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Domainurl", c.baseURL)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	decoded := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: decoded}, nil
}
