// Package a2a implements the agent-to-agent JSON-RPC protocol: capability
// discovery via agent cards, message/send requests, and asynchronous task
// polling via tasks/get.
package a2a

import "encoding/json"

// TaskState is the lifecycle state of a remote task.
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// Terminal reports whether the state ends the task's lifecycle.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// AgentCapabilities flags optional protocol features of an agent.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Skill is one capability advertised by an agent. Tags drive routing.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentCard is the capability manifest an agent publishes for discovery.
// Cards are immutable once fetched; refresh only by re-running discovery.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	URL                string            `json:"url"`
	Version            string            `json:"version,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	Skills             []Skill           `json:"skills,omitempty"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitempty"`
}

// Part is one piece of a message or artifact. The wire uses both "type"
// (requests) and "kind" (artifacts); both are honored when extracting text.
type Part struct {
	Type string `json:"type,omitempty"`
	Kind string `json:"kind,omitempty"`
	Text string `json:"text,omitempty"`
}

// IsText reports whether the part carries text content.
func (p Part) IsText() bool {
	return p.Kind == "text" || p.Type == "text"
}

// Message is the user payload of a message/send request.
type Message struct {
	Role      string `json:"role"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId,omitempty"`
	Parts     []Part `json:"parts"`
}

// SendConfiguration narrows the output modes the caller accepts.
type SendConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
}

// SendParams is the params object of a message/send request.
type SendParams struct {
	Message       Message            `json:"message"`
	Configuration *SendConfiguration `json:"configuration,omitempty"`
}

// TaskQueryParams is the params object of a tasks/get request.
type TaskQueryParams struct {
	ID string `json:"id"`
}

// TaskStatus is the current state of a remote task.
type TaskStatus struct {
	State   TaskState `json:"state"`
	Message string    `json:"message,omitempty"`
}

// Artifact is output attached to a completed task.
type Artifact struct {
	Name  string `json:"name,omitempty"`
	Parts []Part `json:"parts"`
}

// Task is the server-side handle for asynchronous work. It is created and
// owned by the remote agent; clients only observe it.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	MethodMessageSend = "message/send"
	MethodTasksGet    = "tasks/get"

	// CardPath is the discovery endpoint every agent serves.
	CardPath = "/agent_card"
)
