package router

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"lendline/internal/a2a"
	"lendline/internal/registry"
)

type staticResolver map[string]a2a.AgentCard

func (s staticResolver) ResolveCard(_ context.Context, endpoint string) (a2a.AgentCard, error) {
	return s[endpoint], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(cards ...a2a.AgentCard) *Router {
	resolver := staticResolver{}
	endpoints := make([]string, 0, len(cards))
	for i, card := range cards {
		endpoint := "http://agent-" + strings.Repeat("x", i+1)
		resolver[endpoint] = card
		endpoints = append(endpoints, endpoint)
	}
	reg := registry.New(resolver, endpoints, quietLogger())
	return New(reg, quietLogger())
}

func websearchCard() a2a.AgentCard {
	return a2a.AgentCard{
		Name: "Web Search Agent",
		URL:  "http://web",
		Skills: []a2a.Skill{
			{ID: "web_search", Tags: []string{"web", "search", "current", "latest", "news"}},
			{ID: "rate_lookup", Tags: []string{"rates", "market", "interest", "mortgage"}},
		},
	}
}

func documentCard() a2a.AgentCard {
	return a2a.AgentCard{
		Name: "Document Agent",
		URL:  "http://doc",
		Skills: []a2a.Skill{
			{ID: "doc_processing", Tags: []string{"document", "upload", "paystub", "w-2"}},
		},
	}
}

func TestScoreCountsTagSubstrings(t *testing.T) {
	skills := websearchCard().Skills
	cases := []struct {
		request string
		want    int
	}{
		{"what are current mortgage interest rates", 4},
		{"search the web", 2},
		{"hello there", 0},
		{"", 0},
		{"CURRENT Interest RATES", 3},
	}
	for _, tc := range cases {
		if got := Score(tc.request, skills); got != tc.want {
			t.Fatalf("Score(%q) = %d, want %d", tc.request, got, tc.want)
		}
	}
}

func TestScoreIsPure(t *testing.T) {
	skills := websearchCard().Skills
	first := Score("current rates", skills)
	for i := 0; i < 10; i++ {
		if got := Score("current rates", skills); got != first {
			t.Fatalf("Score varied: %d then %d", first, got)
		}
	}
}

func TestRoutePicksHighestScore(t *testing.T) {
	rt := newTestRouter(documentCard(), websearchCard())
	d := rt.Route(context.Background(), "what are current mortgage interest rates")
	if d.AgentName != "Web Search Agent" {
		t.Fatalf("routed to %s", d.AgentName)
	}
	if d.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want capped 1.0", d.Confidence)
	}
}

func TestRouteConfidenceScaling(t *testing.T) {
	rt := newTestRouter(documentCard())
	d := rt.Route(context.Background(), "please process this document")
	if d.AgentName != "Document Agent" {
		t.Fatalf("routed to %s", d.AgentName)
	}
	// One matching tag out of the /3 divisor.
	if d.Confidence < 0.33 || d.Confidence > 0.34 {
		t.Fatalf("confidence = %v", d.Confidence)
	}
}

func TestRouteTieBreaksByRegistrationOrder(t *testing.T) {
	first := a2a.AgentCard{
		Name:   "First Agent",
		URL:    "http://first",
		Skills: []a2a.Skill{{ID: "s", Tags: []string{"mortgage"}}},
	}
	second := a2a.AgentCard{
		Name:   "Second Agent",
		URL:    "http://second",
		Skills: []a2a.Skill{{ID: "s", Tags: []string{"mortgage"}}},
	}
	rt := newTestRouter(first, second)
	for i := 0; i < 5; i++ {
		d := rt.Route(context.Background(), "mortgage question")
		if d.AgentName != "First Agent" {
			t.Fatalf("tie should go to the first-registered agent, got %s", d.AgentName)
		}
	}
}

func TestRouteKeywordFallback(t *testing.T) {
	// Card with no matching tags, but the request carries a fallback keyword.
	rt := newTestRouter(documentCard())
	d := rt.Route(context.Background(), "any news about the fed?")
	if d.AgentName != DefaultAgentName {
		t.Fatalf("routed to %s, want default", d.AgentName)
	}
	if d.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", d.Confidence)
	}
}

func TestRouteDefaultFallback(t *testing.T) {
	rt := newTestRouter()
	d := rt.Route(context.Background(), "hmm")
	if d.AgentName != DefaultAgentName {
		t.Fatalf("routed to %s, want default", d.AgentName)
	}
	if d.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", d.Confidence)
	}
	if d.Reasoning == "" {
		t.Fatal("reasoning should always be populated")
	}
}

func TestRouteCustomDefaults(t *testing.T) {
	rt := newTestRouter()
	rt.DefaultAgent = "Concierge"
	rt.FallbackKeywords = []string{"banana"}

	d := rt.Route(context.Background(), "banana split")
	if d.AgentName != "Concierge" || d.Confidence != 0.8 {
		t.Fatalf("decision = %+v", d)
	}
	d = rt.Route(context.Background(), "nothing matches")
	if d.AgentName != "Concierge" || d.Confidence != 0.5 {
		t.Fatalf("decision = %+v", d)
	}
}
