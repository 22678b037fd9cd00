// Package websearch is the demo web-search agent. It publishes the same
// skills as the production search agent but answers from canned market
// snippets; the real LLM-backed search lives behind the same card shape.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lendline/internal/a2a"
)

// Card returns the web-search agent's capability manifest.
func Card(baseURL string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:        "Web Search Agent",
		Description: "Searches the web for current mortgage rates, market news, and regulations",
		URL:         baseURL,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming:              false,
			PushNotifications:      false,
			StateTransitionHistory: false,
		},
		Skills: []a2a.Skill{
			{
				ID:          "web_search",
				Name:        "Web Search",
				Description: "General web search for current information",
				Tags:        []string{"web", "search", "current", "latest", "news"},
			},
			{
				ID:          "rate_lookup",
				Name:        "Mortgage Rate Lookup",
				Description: "Current mortgage rate and market information",
				Tags:        []string{"rates", "market", "interest", "mortgage"},
			},
		},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
}

// Responder answers queries with canned content after a short simulated
// search delay, so the asynchronous task path gets exercised end to end.
type Responder struct {
	Delay  time.Duration
	Logger *slog.Logger
}

func (r Responder) Respond(ctx context.Context, query string) (string, error) {
	delay := r.Delay
	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	queryLower := strings.ToLower(query)
	switch {
	case strings.Contains(queryLower, "rate"):
		return "Current 30-year fixed mortgage rates are averaging 6.85%, with 15-year fixed at 6.10%. Rates moved down slightly this week on softer inflation data.", nil
	case strings.Contains(queryLower, "news") || strings.Contains(queryLower, "market"):
		return "Mortgage market update: purchase applications rose 3% week over week; refinance activity remains muted while lenders watch the next Fed meeting.", nil
	case strings.Contains(queryLower, "regulation"):
		return "Recent regulatory updates: no changes to conforming loan limits this quarter; new appraisal independence guidance takes effect next month.", nil
	default:
		return fmt.Sprintf("Search results for %q: no specific market data matched; current lending conditions remain stable.", query), nil
	}
}

// Server returns the agent's A2A surface. Answers are delivered via tasks
// to mirror the production agent's asynchronous behavior.
func Server(baseURL string, delay time.Duration, logger *slog.Logger) *a2a.Server {
	return &a2a.Server{
		Card:         Card(baseURL),
		Async:        true,
		ArtifactName: "web_search_result",
		Responder:    Responder{Delay: delay, Logger: logger},
		Logger:       logger,
	}
}
