package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultCardTimeout   = 5 * time.Second
	defaultSendTimeout   = 60 * time.Second
	defaultStatusTimeout = 10 * time.Second

	// Length cap for the stringified-payload fallback.
	fallbackTruncateAt = 300
)

// Client speaks the A2A JSON-RPC protocol to remote agents. Agents may
// answer a message/send synchronously or hand back a task; Send hides the
// difference from callers by polling tasks to completion.
type Client struct {
	HTTPClient    *http.Client
	CardTimeout   time.Duration
	SendTimeout   time.Duration
	StatusTimeout time.Duration
	Poll          PollPolicy
	Logger        *slog.Logger
}

// NewClient returns a client with the default timeouts and poll policy.
func NewClient() *Client {
	return &Client{
		HTTPClient:    &http.Client{},
		CardTimeout:   defaultCardTimeout,
		SendTimeout:   defaultSendTimeout,
		StatusTimeout: defaultStatusTimeout,
		Poll:          DefaultPollPolicy(),
		Logger:        slog.Default(),
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c.HTTPClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// ResolveCard fetches the agent card published at endpoint.
func (c *Client) ResolveCard(ctx context.Context, endpoint string) (AgentCard, error) {
	timeout := c.CardTimeout
	if timeout <= 0 {
		timeout = defaultCardTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(endpoint, "/") + CardPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AgentCard{}, newError(KindMalformed, "build card request", err)
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return AgentCard{}, newError(KindUnreachable, fmt.Sprintf("fetch agent card from %s", endpoint), err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return AgentCard{}, newError(KindUnreachable, fmt.Sprintf("agent card %s returned status %d", endpoint, res.StatusCode), nil)
	}
	var card AgentCard
	if err := json.NewDecoder(res.Body).Decode(&card); err != nil {
		return AgentCard{}, newError(KindMalformed, "decode agent card", err)
	}
	if card.Name == "" {
		return AgentCard{}, newError(KindMalformed, "agent card missing name", nil)
	}
	if card.URL == "" {
		card.URL = endpoint
	}
	return card, nil
}

// Send delivers a text query to an agent and returns the agent's textual
// response. When the agent answers with a task handle, Send polls the task
// to completion under the client's poll policy.
func (c *Client) Send(ctx context.Context, agentURL, query string) (string, error) {
	params := SendParams{
		Message: Message{
			Role:      "user",
			MessageID: uuid.NewString(),
			ContextID: uuid.NewString(),
			Parts:     []Part{{Type: "text", Text: query}},
		},
		Configuration: &SendConfiguration{AcceptedOutputModes: []string{"text"}},
	}
	timeout := c.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	result, err := c.call(ctx, agentURL, MethodMessageSend, params, timeout)
	if err != nil {
		return "", err
	}

	var payload taskPayload
	if err := json.Unmarshal(result, &payload); err == nil && payload.isTaskHandle() {
		// Asynchronous path: the agent created a task we must poll.
		c.logger().Debug("agent returned task handle", "agent_url", agentURL, "task_id", payload.ID)
		return c.PollTask(ctx, agentURL, payload.ID)
	}
	return extractText(result), nil
}

// GetTask fetches the current status of a remote task.
func (c *Client) GetTask(ctx context.Context, agentURL, taskID string) (Task, error) {
	timeout := c.StatusTimeout
	if timeout <= 0 {
		timeout = defaultStatusTimeout
	}
	result, err := c.call(ctx, agentURL, MethodTasksGet, TaskQueryParams{ID: taskID}, timeout)
	if err != nil {
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal(result, &task); err != nil {
		return Task{}, newError(KindMalformed, "decode task status", err)
	}
	return task, nil
}

// call posts one JSON-RPC request and returns the raw result.
func (c *Client) call(ctx context.Context, agentURL, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, newError(KindMalformed, "marshal params", err)
	}
	envelope := Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  rawParams,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, newError(KindMalformed, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agentURL, bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindMalformed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, newError(KindUnreachable, fmt.Sprintf("%s to %s", method, agentURL), err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, newError(KindUnreachable, fmt.Sprintf("%s to %s returned status %d: %s", method, agentURL, res.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	var response Response
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, newError(KindMalformed, "decode response", err)
	}
	if response.Error != nil {
		return nil, newError(KindRemoteFailure, response.Error.Message, nil)
	}
	if len(response.Result) == 0 || string(response.Result) == "null" {
		return nil, newError(KindMalformed, "response missing result", nil)
	}
	return response.Result, nil
}

// taskPayload is the loose shape used to decide whether a message/send
// result is a task handle or a completed payload.
type taskPayload struct {
	ID        string          `json:"id"`
	Status    *TaskStatus     `json:"status"`
	Artifacts []Artifact      `json:"artifacts"`
	Message   json.RawMessage `json:"message"`
}

// isTaskHandle reports whether the result names a task and carries nothing
// resembling a completed payload.
func (p taskPayload) isTaskHandle() bool {
	if p.ID == "" {
		return false
	}
	if len(p.Artifacts) > 0 || len(p.Message) > 0 {
		return false
	}
	return p.Status == nil || !p.Status.State.Terminal()
}

// extractText pulls response text out of a direct (synchronous) result:
// artifact text parts first, then message.content, then a truncated
// stringification of the whole payload.
func extractText(result json.RawMessage) string {
	var direct struct {
		Artifacts []Artifact `json:"artifacts"`
		Message   *struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(result, &direct); err == nil {
		for _, artifact := range direct.Artifacts {
			for _, part := range artifact.Parts {
				if part.IsText() && part.Text != "" {
					return part.Text
				}
			}
		}
		if direct.Message != nil && direct.Message.Content != "" {
			return direct.Message.Content
		}
	}
	raw := string(result)
	if len(raw) > fallbackTruncateAt {
		raw = raw[:fallbackTruncateAt] + "..."
	}
	return fmt.Sprintf("Response received: %s", raw)
}
