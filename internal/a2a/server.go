package a2a

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// JSON-RPC error codes used by the serving side.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Responder produces the textual answer for a query.
type Responder interface {
	Respond(ctx context.Context, query string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, query string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// Server exposes one agent over HTTP: GET /agent_card for discovery and
// POST / for the JSON-RPC methods. With Async set, message/send creates a
// task and answers are collected via tasks/get; otherwise the responder
// runs inline and the result carries the artifact directly.
type Server struct {
	Card         AgentCard
	Responder    Responder
	Tasks        *TaskStore
	Async        bool
	ArtifactName string
	Logger       *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) artifactName() string {
	if s.ArtifactName != "" {
		return s.ArtifactName
	}
	return "agent_result"
}

// Handler returns the agent's HTTP surface.
func (s *Server) Handler() http.Handler {
	if s.Tasks == nil {
		s.Tasks = NewTaskStore()
	}
	router := chi.NewRouter()
	router.Get(CardPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Card)
	})
	router.Post("/", s.handleRPC)
	return router
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, "", codeParseError, "parse error")
		return
	}
	switch req.Method {
	case MethodMessageSend:
		s.handleSend(w, r, req)
	case MethodTasksGet:
		s.handleTasksGet(w, req)
	default:
		writeRPCError(w, req.ID, codeMethodNotFound, "method not found")
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, req Request) {
	var params SendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, codeInvalidParams, "invalid params")
		return
	}
	query := userText(params.Message)
	if query == "" {
		writeRPCError(w, req.ID, codeInvalidParams, "message has no text part")
		return
	}

	if !s.Async {
		text, err := s.Responder.Respond(r.Context(), query)
		if err != nil {
			s.logger().Error("responder failed", "agent", s.Card.Name, "error", err)
			writeRPCError(w, req.ID, codeInternalError, err.Error())
			return
		}
		writeRPCResult(w, req.ID, Task{
			ContextID: params.Message.ContextID,
			Status:    TaskStatus{State: TaskStateCompleted},
			Artifacts: []Artifact{{Name: s.artifactName(), Parts: []Part{{Kind: "text", Text: text}}}},
		})
		return
	}

	task := s.Tasks.Create(params.Message.ContextID)
	go func() {
		// The task outlives the inbound request; it runs on its own context.
		ctx := context.Background()
		s.Tasks.SetWorking(task.ID)
		text, err := s.Responder.Respond(ctx, query)
		if err != nil {
			s.logger().Warn("task failed", "agent", s.Card.Name, "task_id", task.ID, "error", err)
			s.Tasks.Fail(task.ID, err.Error())
			return
		}
		s.Tasks.Complete(task.ID, s.artifactName(), text)
	}()
	// Return only the handle; the client polls tasks/get for the outcome.
	writeRPCResult(w, req.ID, struct {
		ID        string     `json:"id"`
		ContextID string     `json:"contextId,omitempty"`
		Status    TaskStatus `json:"status"`
	}{ID: task.ID, ContextID: task.ContextID, Status: task.Status})
}

func (s *Server) handleTasksGet(w http.ResponseWriter, req Request) {
	var params TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		writeRPCError(w, req.ID, codeInvalidParams, "task id required")
		return
	}
	task, ok := s.Tasks.Get(params.ID)
	if !ok {
		writeRPCError(w, req.ID, codeInvalidRequest, "unknown task")
		return
	}
	writeRPCResult(w, req.ID, task)
}

// userText returns the first text part of a message.
func userText(msg Message) string {
	for _, part := range msg.Parts {
		if part.IsText() && part.Text != "" {
			return part.Text
		}
	}
	return ""
}

func writeRPCResult(w http.ResponseWriter, id string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		writeRPCError(w, id, codeInternalError, "marshal result")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Result: raw})
}

func writeRPCError(w http.ResponseWriter, id string, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Error: &ResponseError{Code: code, Message: msg}})
}
