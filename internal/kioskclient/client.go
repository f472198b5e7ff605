package kioskclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"librarylog/internal/model"
)

var ErrEmptyID = errors.New("card id is empty")

// APIError is a non-2xx answer from the library server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("library server %d: %s", e.Status, e.Message)
}

// NotFound reports whether the card is unknown to the server.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// VisitResponse is returned by sign-in and sign-out.
type VisitResponse struct {
	Message string          `json:"message"`
	Visit   *model.VisitLog `json:"visit"`
}

// ToggleResponse is returned by the kiosk toggle.
type ToggleResponse struct {
	Action        string          `json:"action"`
	Message       string          `json:"message"`
	SignedInCount int64           `json:"signed_in_count"`
	Visit         *model.VisitLog `json:"visit"`
}

// Tokens mirrors the device token pair issued by the server.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client talks to the library server from a card-reader kiosk.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New creates a client for baseURL. Network errors are retried; API errors
// are not.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		SetError(&errorBody{})
	return &Client{http: httpClient, logger: logger}
}

// SetToken sends token as a bearer credential on every request.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// SignIn starts a visit for the card.
func (c *Client) SignIn(ctx context.Context, id string) (*VisitResponse, error) {
	var out VisitResponse
	if err := c.postID(ctx, "/signin", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut ends the card's open visit.
func (c *Client) SignOut(ctx context.Context, id string) (*VisitResponse, error) {
	var out VisitResponse
	if err := c.postID(ctx, "/signout", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Toggle signs the card in or out, whichever applies.
func (c *Client) Toggle(ctx context.Context, id string) (*ToggleResponse, error) {
	var out ToggleResponse
	if err := c.postID(ctx, "/v1/kiosk/toggle", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register asks for a device token pair using the staff view token.
func (c *Client) Register(ctx context.Context, deviceID, viewToken string) (*Tokens, error) {
	var out Tokens
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token", viewToken).
		SetBody(map[string]string{"device_id": deviceID}).
		SetResult(&out).
		Post("/v1/devices/register")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates a device token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&out).
		Post("/v1/devices/refresh")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	return check(resp, err)
}

func (c *Client) postID(ctx context.Context, path, id string, out any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"user_id": id}).
		SetResult(out).
		Post(path)
	if err := check(resp, err); err != nil {
		c.logger.Warn("kiosk request failed", zap.String("path", path), zap.String("user_id", id), zap.Error(err))
		return err
	}
	return nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("library server request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode(), Message: resp.Status()}
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
