package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatterbox/internal/logger"
)

// Client calls the push service. With an empty base URL every method is a no-op.
// Requests carry X-Internal-Secret when one is configured.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewClient(baseURL, internalSecret string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  internalSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Enabled() bool { return c.baseURL != "" }

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("X-Internal-Secret", c.secret)
	}
	return c.httpClient.Do(req)
}

func (c *Client) expectNoContent(ctx context.Context, method, path string, body any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("push %s %s: %d", method, path, resp.StatusCode)
	}
	return nil
}

// Subscribe stores a browser subscription for userID.
func (c *Client) Subscribe(ctx context.Context, userID string, sub Subscription) error {
	if !c.Enabled() {
		return nil
	}
	return c.expectNoContent(ctx, http.MethodPost, "/api/subscribe", SubscribeRequest{UserID: userID, Subscription: sub})
}

// Unsubscribe removes the subscription with the given endpoint.
func (c *Client) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if !c.Enabled() {
		return nil
	}
	return c.expectNoContent(ctx, http.MethodDelete, "/api/subscribe", UnsubscribeRequest{UserID: userID, Endpoint: endpoint})
}

// PublicKey returns the VAPID public key browsers need for pushManager.subscribe().
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/vapid-public", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("push vapid-public: %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Notify sends an alert to every subscription of userID. Failures are logged only.
func (c *Client) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if !c.Enabled() {
		return
	}
	err := c.expectNoContent(ctx, http.MethodPost, "/api/notify", NotifyRequest{UserID: userID, Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push notify user=%s: %v", userID, err)
	}
}
