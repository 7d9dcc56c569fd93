// Package authclient implements session.AuthClient against a remote
// PocketBase-compatible users collection.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

const defaultCollection = "users"

type Client struct {
	httpClient *http.Client
	baseURL    string
	collection string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: defaultCollection,
	}
}

type authResponse struct {
	Token  string            `json:"token"`
	Record *domain.Principal `json:"record"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError carries the backend's message; it unwraps to the matching
// domain sentinel.
type APIError struct {
	Status  int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("auth backend returned %d", e.Status)
}

func (e *APIError) Unwrap() error { return e.kind }

func (c *Client) AuthWithPassword(ctx context.Context, identity, password string) (string, *domain.Principal, error) {
	in := map[string]string{"identity": identity, "password": password}
	var out authResponse
	if err := c.request(ctx, "auth-with-password", "", in, &out); err != nil {
		return "", nil, err
	}
	return out.Token, out.Record, nil
}

func (c *Client) AuthRefresh(ctx context.Context, token string) (string, *domain.Principal, error) {
	if strings.TrimSpace(token) == "" {
		return "", nil, domain.ErrUnauthorized
	}
	var out authResponse
	if err := c.request(ctx, "auth-refresh", token, nil, &out); err != nil {
		return "", nil, err
	}
	return out.Token, out.Record, nil
}

func (c *Client) request(ctx context.Context, action, token string, in any, out *authResponse) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	url := fmt.Sprintf("%s/api/collections/%s/%s", c.baseURL, c.collection, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth backend %s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if out.Token == "" || out.Record == nil {
		return fmt.Errorf("%s: %w: empty token or record", action, domain.ErrUnauthorized)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e errorResponse
	_ = json.Unmarshal(payload, &e)
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(payload))
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: msg}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		apiErr.kind = domain.ErrInvalidCredentials
	case http.StatusUnauthorized:
		apiErr.kind = domain.ErrUnauthorized
	case http.StatusForbidden:
		apiErr.kind = domain.ErrForbidden
	case http.StatusNotFound:
		apiErr.kind = domain.ErrNotFound
	}
	return apiErr
}
