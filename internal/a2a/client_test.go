package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient() *Client {
	c := NewClient()
	c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c.Poll = PollPolicy{Interval: 5 * time.Millisecond, MaxAttempts: 30}
	return c
}

// rpcServer fakes an agent: sendResult answers message/send, getResults
// answers successive tasks/get calls (the last repeats).
type rpcServer struct {
	card       AgentCard
	sendResult any
	getResults []any
	getCalls   atomic.Int64
}

func (s *rpcServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(CardPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(s.card)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result any
		switch req.Method {
		case MethodMessageSend:
			result = s.sendResult
		case MethodTasksGet:
			n := int(s.getCalls.Add(1)) - 1
			if n >= len(s.getResults) {
				n = len(s.getResults) - 1
			}
			result = s.getResults[n]
		default:
			http.Error(w, "unknown method", http.StatusBadRequest)
			return
		}
		raw, _ := json.Marshal(result)
		json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: req.ID, Result: raw})
	})
	return mux
}

func TestResolveCard(t *testing.T) {
	srv := &rpcServer{card: AgentCard{
		Name: "Web Search Agent",
		Skills: []Skill{
			{ID: "web_search", Tags: []string{"web", "search"}},
		},
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	card, err := newTestClient().ResolveCard(context.Background(), ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	if card.Name != "Web Search Agent" || len(card.Skills) != 1 {
		t.Fatalf("card = %+v", card)
	}
	if card.URL != ts.URL {
		t.Fatalf("card URL should default to the endpoint, got %q", card.URL)
	}
}

func TestResolveCardMissingName(t *testing.T) {
	srv := &rpcServer{card: AgentCard{URL: "http://somewhere"}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	_, err := newTestClient().ResolveCard(context.Background(), ts.URL)
	if KindOf(err) != KindMalformed {
		t.Fatalf("err = %v, want malformed kind", err)
	}
}

func TestResolveCardUnreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	ts.Close() // immediately dead

	_, err := newTestClient().ResolveCard(context.Background(), ts.URL)
	if KindOf(err) != KindUnreachable {
		t.Fatalf("err = %v, want unreachable kind", err)
	}
}

func TestSendSynchronousArtifacts(t *testing.T) {
	srv := &rpcServer{sendResult: Task{
		ID:     "task-1",
		Status: TaskStatus{State: TaskStateCompleted},
		Artifacts: []Artifact{
			{Name: "result", Parts: []Part{{Kind: "text", Text: "Current rate is 6.85%"}}},
		},
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	text, err := newTestClient().Send(context.Background(), ts.URL, "what are rates?")
	if err != nil {
		t.Fatal(err)
	}
	if text != "Current rate is 6.85%" {
		t.Fatalf("text = %q", text)
	}
	if srv.getCalls.Load() != 0 {
		t.Fatal("synchronous result should not trigger polling")
	}
}

func TestSendMessageContentFallback(t *testing.T) {
	srv := &rpcServer{sendResult: map[string]any{
		"message": map[string]any{"content": "hello from agent"},
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	text, err := newTestClient().Send(context.Background(), ts.URL, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello from agent" {
		t.Fatalf("text = %q", text)
	}
}

func TestSendStringifiedFallbackTruncates(t *testing.T) {
	srv := &rpcServer{sendResult: map[string]any{
		"unexpected": strings.Repeat("x", 400),
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	text, err := newTestClient().Send(context.Background(), ts.URL, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(text, "Response received: ") {
		t.Fatalf("text = %q", text)
	}
	if !strings.HasSuffix(text, "...") {
		t.Fatalf("long payload should be truncated, got %d chars", len(text))
	}
	if len(text) > len("Response received: ")+fallbackTruncateAt+3 {
		t.Fatalf("text too long: %d chars", len(text))
	}
}

func TestSendTaskHandlePolls(t *testing.T) {
	srv := &rpcServer{
		sendResult: map[string]any{"id": "task-123"},
		getResults: []any{
			Task{ID: "task-123", Status: TaskStatus{State: TaskStateSubmitted}},
			Task{ID: "task-123", Status: TaskStatus{State: TaskStateWorking}},
			Task{
				ID:     "task-123",
				Status: TaskStatus{State: TaskStateCompleted},
				Artifacts: []Artifact{
					{Parts: []Part{{Kind: "text", Text: "search complete"}}},
				},
			},
		},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	text, err := newTestClient().Send(context.Background(), ts.URL, "find rates")
	if err != nil {
		t.Fatal(err)
	}
	if text != "search complete" {
		t.Fatalf("text = %q", text)
	}
	if got := srv.getCalls.Load(); got != 3 {
		t.Fatalf("tasks/get called %d times, want 3", got)
	}
}

func TestSendWorkingHandleWithStatusStillPolls(t *testing.T) {
	// A handle that carries a non-terminal status is still a handle.
	srv := &rpcServer{
		sendResult: Task{ID: "task-9", Status: TaskStatus{State: TaskStateWorking}},
		getResults: []any{
			Task{
				ID:     "task-9",
				Status: TaskStatus{State: TaskStateCompleted},
				Artifacts: []Artifact{
					{Parts: []Part{{Kind: "text", Text: "done"}}},
				},
			},
		},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	text, err := newTestClient().Send(context.Background(), ts.URL, "q")
	if err != nil {
		t.Fatal(err)
	}
	if text != "done" {
		t.Fatalf("text = %q", text)
	}
}

func TestPollTaskExhaustsAttempts(t *testing.T) {
	srv := &rpcServer{
		getResults: []any{Task{ID: "task-5", Status: TaskStatus{State: TaskStateWorking}}},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := newTestClient()
	c.Poll = PollPolicy{Interval: time.Millisecond, MaxAttempts: 4}
	_, err := c.PollTask(context.Background(), ts.URL, "task-5")
	if KindOf(err) != KindTimeout {
		t.Fatalf("err = %v, want timeout kind", err)
	}
	if got := srv.getCalls.Load(); got != 4 {
		t.Fatalf("tasks/get called %d times, want 4", got)
	}
}

func TestPollTaskFailed(t *testing.T) {
	srv := &rpcServer{
		getResults: []any{Task{ID: "task-6", Status: TaskStatus{State: TaskStateFailed, Message: "backend exploded"}}},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	_, err := newTestClient().PollTask(context.Background(), ts.URL, "task-6")
	if KindOf(err) != KindRemoteFailure {
		t.Fatalf("err = %v, want remote failure kind", err)
	}
	if !strings.Contains(err.Error(), "backend exploded") {
		t.Fatalf("err = %v, want status message", err)
	}
}

func TestPollTaskCompletedWithoutArtifacts(t *testing.T) {
	srv := &rpcServer{
		getResults: []any{Task{ID: "task-7", Status: TaskStatus{State: TaskStateCompleted}}},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	text, err := newTestClient().PollTask(context.Background(), ts.URL, "task-7")
	if err != nil {
		t.Fatal(err)
	}
	if text != "Task completed but no response found" {
		t.Fatalf("text = %q", text)
	}
}

func TestPollTaskContextCanceled(t *testing.T) {
	srv := &rpcServer{
		getResults: []any{Task{ID: "task-8", Status: TaskStatus{State: TaskStateWorking}}},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient().PollTask(ctx, ts.URL, "task-8")
	if KindOf(err) != KindTimeout {
		t.Fatalf("err = %v, want timeout kind", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err should wrap context.Canceled, got %v", err)
	}
}

func TestSendRemoteRPCError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{
			JSONRPC: "2.0",
			Error:   &ResponseError{Code: -32601, Message: "method not found"},
		})
	}))
	defer ts.Close()

	_, err := newTestClient().Send(context.Background(), ts.URL, "q")
	if KindOf(err) != KindRemoteFailure {
		t.Fatalf("err = %v, want remote failure kind", err)
	}
}

func TestIsTaskHandle(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"bare id", `{"id":"task-123"}`, true},
		{"id with submitted status", `{"id":"t","status":{"state":"submitted"}}`, true},
		{"completed with artifacts", `{"id":"t","status":{"state":"completed"},"artifacts":[{"parts":[{"kind":"text","text":"x"}]}]}`, false},
		{"message payload", `{"id":"t","message":{"content":"x"}}`, false},
		{"no id", `{"status":{"state":"working"}}`, false},
		{"failed status", `{"id":"t","status":{"state":"failed"}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p taskPayload
			if err := json.Unmarshal([]byte(tc.raw), &p); err != nil {
				t.Fatal(err)
			}
			if got := p.isTaskHandle(); got != tc.want {
				t.Fatalf("isTaskHandle(%s) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
