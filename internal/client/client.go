package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/TimurManjosov/mockflow/internal/catalog"
	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/workflow"
)

// Client is an HTTP client for the mockflow management API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// SimulateRequest is the body of a simulate call.
type SimulateRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    any               `json:"body,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	DryRun  bool              `json:"dryRun"`
}

// ListScenarios returns every scenario.
func (c *Client) ListScenarios(ctx context.Context) ([]store.Scenario, error) {
	var result struct {
		Scenarios []store.Scenario `json:"scenarios"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/scenarios", nil, &result); err != nil {
		return nil, err
	}
	return result.Scenarios, nil
}

// CreateScenario creates a scenario.
func (c *Client) CreateScenario(ctx context.Context, s store.Scenario) (*store.Scenario, error) {
	var created store.Scenario
	if err := c.doJSON(ctx, http.MethodPost, "/v1/scenarios", s, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteScenario deletes a scenario with its transitions and state.
func (c *Client) DeleteScenario(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/scenarios/"+url.PathEscape(id), nil, nil)
}

// ListTransitions returns a scenario's transitions in creation order.
func (c *Client) ListTransitions(ctx context.Context, scenarioID string) ([]store.Transition, error) {
	var result struct {
		Transitions []store.Transition `json:"transitions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/scenarios/"+url.PathEscape(scenarioID)+"/transitions", nil, &result); err != nil {
		return nil, err
	}
	return result.Transitions, nil
}

// CreateTransition posts a transition definition. definition is sent as-is so
// either condition and effect syntax can be used.
func (c *Client) CreateTransition(ctx context.Context, scenarioID string, definition json.RawMessage) (*store.Transition, error) {
	var created store.Transition
	if err := c.doJSON(ctx, http.MethodPost, "/v1/scenarios/"+url.PathEscape(scenarioID)+"/transitions", definition, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteTransition deletes one transition.
func (c *Client) DeleteTransition(ctx context.Context, scenarioID, id string) error {
	path := "/v1/scenarios/" + url.PathEscape(scenarioID) + "/transitions/" + url.PathEscape(id)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// State returns the scenario's persisted document.
func (c *Client) State(ctx context.Context, scenarioID string) (*store.Document, error) {
	var doc store.Document
	if err := c.doJSON(ctx, http.MethodGet, "/v1/scenarios/"+url.PathEscape(scenarioID)+"/state", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Reset deletes the scenario's state.
func (c *Client) Reset(ctx context.Context, scenarioID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/scenarios/"+url.PathEscape(scenarioID)+"/state", nil, nil)
}

// Simulate runs a request through condition-aware routing.
func (c *Client) Simulate(ctx context.Context, scenarioID string, req SimulateRequest) (*workflow.SimulateResult, error) {
	var res workflow.SimulateResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/scenarios/"+url.PathEscape(scenarioID)+"/simulate", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExportCatalog downloads every scenario as YAML.
func (c *Client) ExportCatalog(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/catalog", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// ImportCatalog uploads a YAML catalog.
func (c *Client) ImportCatalog(ctx context.Context, data []byte) (*catalog.Result, error) {
	resp, err := c.do(ctx, http.MethodPut, "/v1/catalog", "application/yaml", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res catalog.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &res, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends the request and turns non-2xx responses into *APIError.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return resp, nil
}
