package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/types"
)

// Client provides interface to the alert agent control API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new control API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetStatus retrieves the current connection status
func (c *Client) GetStatus() (*types.AgentStatus, error) {
	var status types.AgentStatus
	if err := c.getJSON("/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListAlerts retrieves open alerts, or the whole history when all is set
func (c *Client) ListAlerts(all bool) ([]types.Presentation, error) {
	path := "/alerts"
	if all {
		path += "?all=true"
	}

	var alerts []types.Presentation
	if err := c.getJSON(path, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Acknowledge closes the alert with id
func (c *Client) Acknowledge(id string) (*types.Presentation, error) {
	return c.postAck(fmt.Sprintf("/alerts/%s/ack", url.PathEscape(id)))
}

// AcknowledgeLatest closes the newest open alert
func (c *Client) AcknowledgeLatest() (*types.Presentation, error) {
	return c.postAck("/alerts/ack")
}

// Health checks if the agent is running
func (c *Client) Health() error {
	resp, err := c.httpClient.Get(fmt.Sprintf("%s/health", c.baseURL))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status code %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postAck(path string) (*types.Presentation, error) {
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to acknowledge alert: %s", string(body))
	}

	var p types.Presentation
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
