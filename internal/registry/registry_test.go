package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"lendline/internal/a2a"
)

// fakeResolver maps endpoints to cards or errors and counts calls.
type fakeResolver struct {
	cards map[string]a2a.AgentCard
	calls int
}

func (f *fakeResolver) ResolveCard(_ context.Context, endpoint string) (a2a.AgentCard, error) {
	f.calls++
	card, ok := f.cards[endpoint]
	if !ok {
		return a2a.AgentCard{}, errors.New("connection refused")
	}
	return card, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitializeBestEffort(t *testing.T) {
	resolver := &fakeResolver{cards: map[string]a2a.AgentCard{
		"http://a": {Name: "Agent A", URL: "http://a"},
		"http://c": {Name: "Agent C", URL: "http://c"},
	}}
	reg := New(resolver, []string{"http://a", "http://b", "http://c"}, quietLogger())

	reg.Initialize(context.Background())

	if !reg.Initialized() {
		t.Fatal("registry should be initialized even with partial failures")
	}
	if reg.Len() != 2 {
		t.Fatalf("registered %d agents, want 2", reg.Len())
	}
	if _, ok := reg.Card("Agent B"); ok {
		t.Fatal("unreachable endpoint should not be registered")
	}
}

func TestInitializeIdempotent(t *testing.T) {
	resolver := &fakeResolver{cards: map[string]a2a.AgentCard{
		"http://a": {Name: "Agent A", URL: "http://a"},
	}}
	reg := New(resolver, []string{"http://a"}, quietLogger())

	reg.Initialize(context.Background())
	reg.Initialize(context.Background())
	reg.Initialize(context.Background())

	if resolver.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", resolver.calls)
	}
}

func TestCardsPreserveRegistrationOrder(t *testing.T) {
	resolver := &fakeResolver{cards: map[string]a2a.AgentCard{
		"http://z": {Name: "Zeta", URL: "http://z"},
		"http://a": {Name: "Alpha", URL: "http://a"},
		"http://m": {Name: "Mid", URL: "http://m"},
	}}
	reg := New(resolver, []string{"http://z", "http://a", "http://m"}, quietLogger())
	reg.Initialize(context.Background())

	cards := reg.Cards()
	want := []string{"Zeta", "Alpha", "Mid"}
	if len(cards) != len(want) {
		t.Fatalf("got %d cards", len(cards))
	}
	for i, name := range want {
		if cards[i].Name != name {
			t.Fatalf("cards[%d] = %s, want %s", i, cards[i].Name, name)
		}
	}
}

func TestEmptyRegistry(t *testing.T) {
	resolver := &fakeResolver{}
	reg := New(resolver, []string{"http://a", "http://b"}, quietLogger())
	reg.Initialize(context.Background())

	if reg.Len() != 0 {
		t.Fatalf("len = %d, want 0", reg.Len())
	}
	if cards := reg.Cards(); len(cards) != 0 {
		t.Fatalf("cards = %v, want empty", cards)
	}
}
