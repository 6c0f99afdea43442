// Package client is a small API client for the auth and profile endpoints.
// It keeps the access token in memory, relies on the cookie jar for the
// refresh token and transparently re-authenticates once when a request
// comes back 401
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/akotlyarov/lingua/internal/models"
)

type Config struct {
	BaseURL string

	// HTTPClient to use. If nil a client with a fresh cookie jar is created.
	// The jar is required: the refresh token only travels as a cookie
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string

	// Collapses concurrent refresh attempts into one round trip, so a burst
	// of 401s burns a single refresh token instead of racing for the rotation
	refreshGroup singleflight.Group
}

// User as the API returns it
type User struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	CurrentGoal *models.Goal `json:"currentGoal"`
	CurrentDay  int          `json:"currentDay"`
	Streak      int          `json:"streak"`
}

// APIError is any non-2xx response from the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url must not be empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("error while creating cookie jar. Err: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}
	if httpClient.Jar == nil {
		return nil, fmt.Errorf("http client must have a cookie jar")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// AccessToken returns the token currently used for authenticated requests
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// Register creates an account and leaves the client logged in
func (c *Client) Register(ctx context.Context, name string, email string, password string) (User, error) {
	type request struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	type response struct {
		User        User   `json:"user"`
		AccessToken string `json:"accessToken"`
	}

	var resp response
	err := c.call(ctx, http.MethodPost, "/api/auth/register", request{Name: name, Email: email, Password: password}, &resp)
	if err != nil {
		return User{}, err
	}

	c.setAccessToken(resp.AccessToken)
	return resp.User, nil
}

// Login authenticates with credentials and stores the session
func (c *Client) Login(ctx context.Context, email string, password string) (User, error) {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	type response struct {
		User        User   `json:"user"`
		AccessToken string `json:"accessToken"`
	}

	var resp response
	err := c.call(ctx, http.MethodPost, "/api/auth/login", request{Email: email, Password: password}, &resp)
	if err != nil {
		return User{}, err
	}

	c.setAccessToken(resp.AccessToken)
	return resp.User, nil
}

// Logout revokes the session server side and drops the access token
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.setAccessToken("")
	return err
}

// Me returns the authenticated user's profile
func (c *Client) Me(ctx context.Context) (User, error) {
	type response struct {
		User User `json:"user"`
	}

	var resp response
	err := c.authed(ctx, http.MethodGet, "/api/me", nil, &resp)
	return resp.User, err
}

// SetGoal switches the learning goal
func (c *Client) SetGoal(ctx context.Context, goal models.Goal) (User, error) {
	type request struct {
		Goal string `json:"goal"`
	}
	type response struct {
		User User `json:"user"`
	}

	var resp response
	err := c.authed(ctx, http.MethodPut, "/api/me/goal", request{Goal: string(goal)}, &resp)
	return resp.User, err
}

// refresh redeems the refresh cookie for a new pair.
// Concurrent callers share one request: the refresh token is single use and
// a second redemption of the same one would fail
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		type response struct {
			AccessToken string `json:"accessToken"`
		}

		var resp response
		if err := c.call(ctx, http.MethodPost, "/api/auth/refresh", nil, &resp); err != nil {
			return nil, err
		}

		c.setAccessToken(resp.AccessToken)
		return nil, nil
	})
	return err
}

// authed performs a request with the bearer token and retries exactly once
// through a refresh when the server answers 401
func (c *Client) authed(ctx context.Context, method string, path string, reqBody any, respBody any) error {
	err := c.call(ctx, method, path, reqBody, respBody)

	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	if err := c.refresh(ctx); err != nil {
		return err
	}

	return c.call(ctx, method, path, reqBody, respBody)
}

// call performs one round trip. Non-2xx responses become *APIError
func (c *Client) call(ctx context.Context, method string, path string, reqBody any, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(reqBody); err != nil {
			return fmt.Errorf("error while encoding request body. Err: %w", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if respBody == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}
