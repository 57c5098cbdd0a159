// Package webhook triggers actions on the Living Wales service host. Requests
// are authenticated with a token derived from a shared key and the current
// minute, so a captured token expires within a minute.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/httputil"
	"github.com/livingwales/vproducts/internal/timeutil"
)

// KeyEnv names the environment variable holding the shared key.
const KeyEnv = "WEBHOOK_KEY"

// ErrMissingKey is returned when no shared key is configured.
var ErrMissingKey = errors.New("missing webhook key")

// maxResponseSize caps the JSON read from the service.
const maxResponseSize = 1 << 20

// KeyFromEnv reads the shared key from WEBHOOK_KEY.
func KeyFromEnv() (string, error) {
	key := os.Getenv(KeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s is not set: %w", KeyEnv, ErrMissingKey)
	}
	return key, nil
}

// Token returns the hex sha256 of "<key>;<now truncated to the minute>",
// with the time in UTC and ISO 8601 form.
func Token(key string, now time.Time) string {
	minute := now.UTC().Truncate(time.Minute)
	sum := sha256.Sum256([]byte(key + ";" + minute.Format("2006-01-02T15:04:05")))
	return hex.EncodeToString(sum[:])
}

// Client calls the webhook endpoints of one host.
type Client struct {
	Host  string
	key   string
	HTTP  httputil.HTTPClient
	Clock timeutil.Clock
}

// New returns a client for the configured host.
func New(cfg *config.Config, key string) (*Client, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if cfg == nil {
		cfg = config.Empty()
	}
	return &Client{
		Host:  strings.TrimRight(cfg.GetWebhookHost(), "/"),
		key:   key,
		HTTP:  httputil.NewStandardClient(cfg.GetWebhookTimeout()),
		Clock: timeutil.RealClock{},
	}, nil
}

// Result is the service's answer to an action request.
type Result struct {
	ActionID  string                 `json:"action_id"`
	StatusURL string                 `json:"status_url"`
	Response  map[string]interface{} `json:"response"`
}

// ActionURL is the endpoint that runs action with args.
func (c *Client) ActionURL(action string, args ...string) string {
	return fmt.Sprintf("%s/webhook/action/%s/%s", c.Host, action, strings.Join(args, "/"))
}

// StatusURL is the endpoint reporting on a running action.
func (c *Client) StatusURL(actionID string) string {
	return fmt.Sprintf("%s/webhook/status/%s", c.Host, actionID)
}

// Trigger asks the host to run action and returns its action id together
// with the URL of its status file.
func (c *Client) Trigger(ctx context.Context, action string, args ...string) (*Result, error) {
	if action == "" {
		return nil, fmt.Errorf("webhook action is required")
	}
	body, err := c.get(ctx, c.ActionURL(action, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to trigger %s: %w", action, err)
	}
	id, ok := body["action_id"]
	if !ok {
		return nil, fmt.Errorf("failed to trigger %s: response has no action_id", action)
	}
	res := &Result{ActionID: fmt.Sprint(id), Response: body}
	res.StatusURL = c.StatusURL(res.ActionID)
	return res, nil
}

// Status fetches the status file of an action.
func (c *Client) Status(ctx context.Context, actionID string) (map[string]interface{}, error) {
	body, err := c.get(ctx, c.StatusURL(actionID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status of action %s: %w", actionID, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+Token(c.key, timeutil.Or(c.Clock).Now()))
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook responded with status code %d", resp.StatusCode)
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode webhook response: %w", err)
	}
	return body, nil
}
