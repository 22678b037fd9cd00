// Package lendlinesdk is a minimal client for the Lendline HTTP API.
package lendlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Lendline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ConversationContext carries chat-captured applicant fields.
type ConversationContext struct {
	FullName             string  `json:"full_name,omitempty"`
	AnnualIncome         float64 `json:"annual_income,omitempty"`
	PurchasePrice        float64 `json:"purchase_price,omitempty"`
	DownPayment          float64 `json:"down_payment,omitempty"`
	CompletionPercentage float64 `json:"completion_percentage,omitempty"`
}

// ChatResult is the reply to one chat message.
type ChatResult struct {
	ThreadID      string  `json:"thread_id"`
	Reply         string  `json:"reply"`
	AgentName     string  `json:"agent_name"`
	Confidence    float64 `json:"confidence"`
	Intent        string  `json:"intent"`
	ApplicationID string  `json:"application_id,omitempty"`
	Status        string  `json:"status"`
	Phase         string  `json:"phase"`
}

// Application is the API application model.
type Application struct {
	ID               string `json:"id"`
	ApplicantName    string `json:"applicant_name"`
	PrimaryApplicant string `json:"primary_applicant"`
	Phase            string `json:"phase"`
	CreatedFrom      string `json:"created_from,omitempty"`
	AutoCreated      bool   `json:"auto_created"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// DocumentResult reports where an uploaded document landed.
type DocumentResult struct {
	ApplicationID string `json:"application_id,omitempty"`
	Status        string `json:"status"`
	Phase         string `json:"phase"`
}

// RouteDecision is a routing preview.
type RouteDecision struct {
	AgentName  string  `json:"agent_name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Chat sends one chat message.
func (c *Client) Chat(ctx context.Context, threadID, message, personName string, convCtx *ConversationContext) (ChatResult, error) {
	body := map[string]any{
		"thread_id":   threadID,
		"message":     message,
		"person_name": personName,
	}
	if convCtx != nil {
		body["context"] = convCtx
	}
	var resp ChatResult
	err := c.do(ctx, http.MethodPost, "chat", body, &resp)
	return resp, err
}

// UploadDocument registers document content, optionally against a known
// application.
func (c *Client) UploadDocument(ctx context.Context, applicationID, personName, content string) (DocumentResult, error) {
	body := map[string]any{
		"application_id": applicationID,
		"person_name":    personName,
		"content":        content,
	}
	var resp DocumentResult
	err := c.do(ctx, http.MethodPost, "documents", body, &resp)
	return resp, err
}

// GetApplication fetches an application by id.
func (c *Client) GetApplication(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("applications/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ListApplications returns all applications.
func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	var resp []Application
	err := c.do(ctx, http.MethodGet, "applications", nil, &resp)
	return resp, err
}

// SetPhase moves an application to a new lifecycle phase.
func (c *Client) SetPhase(ctx context.Context, id, phase string) (Application, error) {
	var resp Application
	endpoint := fmt.Sprintf("applications/%s/phase", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"phase": phase}, &resp)
	return resp, err
}

// Route previews the routing decision for a request.
func (c *Client) Route(ctx context.Context, request string) (RouteDecision, error) {
	var resp RouteDecision
	err := c.do(ctx, http.MethodPost, "route", map[string]any{"request": request}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(base, "/v0") {
		base += "/v0"
	}
	return base
}
