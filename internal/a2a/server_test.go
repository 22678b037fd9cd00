package a2a

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerSyncRoundtrip(t *testing.T) {
	agent := &Server{
		Card:      AgentCard{Name: "Echo Agent", URL: "http://unused"},
		Responder: ResponderFunc(func(_ context.Context, q string) (string, error) { return "echo: " + q, nil }),
		Logger:    quietLogger(),
	}
	ts := httptest.NewServer(agent.Handler())
	defer ts.Close()

	c := newTestClient()
	text, err := c.Send(context.Background(), ts.URL, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if text != "echo: hello" {
		t.Fatalf("text = %q", text)
	}
}

func TestServerAsyncRoundtrip(t *testing.T) {
	agent := &Server{
		Card:         AgentCard{Name: "Slow Agent", URL: "http://unused"},
		Async:        true,
		ArtifactName: "slow_result",
		Responder: ResponderFunc(func(_ context.Context, q string) (string, error) {
			time.Sleep(10 * time.Millisecond)
			return "eventually: " + q, nil
		}),
		Logger: quietLogger(),
	}
	ts := httptest.NewServer(agent.Handler())
	defer ts.Close()

	c := newTestClient()
	text, err := c.Send(context.Background(), ts.URL, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if text != "eventually: hello" {
		t.Fatalf("text = %q", text)
	}
}

func TestServerAsyncFailureSurfacesStatusMessage(t *testing.T) {
	agent := &Server{
		Card:  AgentCard{Name: "Broken Agent", URL: "http://unused"},
		Async: true,
		Responder: ResponderFunc(func(_ context.Context, q string) (string, error) {
			return "", errors.New("upstream unavailable")
		}),
		Logger: quietLogger(),
	}
	ts := httptest.NewServer(agent.Handler())
	defer ts.Close()

	c := newTestClient()
	_, err := c.Send(context.Background(), ts.URL, "hello")
	if KindOf(err) != KindRemoteFailure {
		t.Fatalf("err = %v, want remote failure kind", err)
	}
}

func TestServerCardEndpoint(t *testing.T) {
	agent := &Server{
		Card:      AgentCard{Name: "Card Agent", URL: "http://advertised"},
		Responder: ResponderFunc(func(_ context.Context, q string) (string, error) { return "", nil }),
		Logger:    quietLogger(),
	}
	ts := httptest.NewServer(agent.Handler())
	defer ts.Close()

	card, err := newTestClient().ResolveCard(context.Background(), ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	if card.Name != "Card Agent" || card.URL != "http://advertised" {
		t.Fatalf("card = %+v", card)
	}
}

func TestTaskStoreLifecycle(t *testing.T) {
	store := NewTaskStore()
	task := store.Create("ctx-1")
	if task.Status.State != TaskStateSubmitted {
		t.Fatalf("new task state = %s", task.Status.State)
	}
	store.SetWorking(task.ID)
	got, ok := store.Get(task.ID)
	if !ok || got.Status.State != TaskStateWorking {
		t.Fatalf("task after SetWorking = %+v", got)
	}
	store.Complete(task.ID, "result", "final text")
	got, _ = store.Get(task.ID)
	if got.Status.State != TaskStateCompleted {
		t.Fatalf("state = %s", got.Status.State)
	}
	if firstArtifactText(got) != "final text" {
		t.Fatalf("artifact text = %q", firstArtifactText(got))
	}

	other := store.Create("ctx-2")
	store.Fail(other.ID, "boom")
	got, _ = store.Get(other.ID)
	if got.Status.State != TaskStateFailed || got.Status.Message != "boom" {
		t.Fatalf("failed task = %+v", got)
	}
}
