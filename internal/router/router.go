// Package router scores registered agents against a natural-language
// request and picks a target. Routing never fails: with no matching agent
// it falls back to a keyword heuristic and finally to a default agent.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lendline/internal/a2a"
	"lendline/internal/registry"
)

// DefaultAgentName is the agent that receives fallback traffic. It can
// fetch fresh information, which is the best bet when genuinely unsure.
const DefaultAgentName = "Web Search Agent"

// DefaultFallbackKeywords trigger high-confidence fallback routing to the
// default agent when no skill tag matches.
var DefaultFallbackKeywords = []string{
	"current", "latest", "recent", "news", "today", "2024", "2025",
	"rates", "market", "interest", "economic", "fed", "federal",
	"search", "find", "lookup", "google", "web", "internet",
	"regulations", "updates", "changes", "new",
}

// Decision is the outcome of routing one request.
type Decision struct {
	AgentName  string  `json:"agent_name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Router selects agents for requests using skill-tag scoring.
type Router struct {
	Registry         *registry.Registry
	DefaultAgent     string
	FallbackKeywords []string
	Logger           *slog.Logger
}

// New returns a router over the given registry with the default fallback
// configuration.
func New(reg *registry.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		Registry:         reg,
		DefaultAgent:     DefaultAgentName,
		FallbackKeywords: DefaultFallbackKeywords,
		Logger:           logger,
	}
}

// Score counts the skill tags whose lowercase form appears as a substring
// of the lowercased request. It is the whole of the matching model: no
// stemming, no weighting.
func Score(request string, skills []a2a.Skill) int {
	requestLower := strings.ToLower(request)
	score := 0
	for _, skill := range skills {
		for _, tag := range skill.Tags {
			if tag == "" {
				continue
			}
			if strings.Contains(requestLower, strings.ToLower(tag)) {
				score++
			}
		}
	}
	return score
}

// Route picks the agent for a request. The best tag score wins; ties break
// on registration order. A zero best score falls back to the keyword list
// (confidence 0.8) and then to the default agent (confidence 0.5).
func (r *Router) Route(ctx context.Context, request string) Decision {
	r.Registry.Initialize(ctx)

	bestAgent := ""
	bestScore := 0
	for _, card := range r.Registry.Cards() {
		score := Score(request, card.Skills)
		if score > bestScore {
			bestScore = score
			bestAgent = card.Name
		}
	}

	if bestAgent != "" && bestScore > 0 {
		confidence := float64(bestScore) / 3.0
		if confidence > 1.0 {
			confidence = 1.0
		}
		decision := Decision{
			AgentName:  bestAgent,
			Confidence: confidence,
			Reasoning:  fmt.Sprintf("Selected %s by skill tags (score: %d)", bestAgent, bestScore),
		}
		r.Logger.Debug("routed by skill tags", "agent", bestAgent, "score", bestScore)
		return decision
	}

	requestLower := strings.ToLower(request)
	for _, keyword := range r.fallbackKeywords() {
		if strings.Contains(requestLower, keyword) {
			return Decision{
				AgentName:  r.defaultAgent(),
				Confidence: 0.8,
				Reasoning:  fmt.Sprintf("Keyword %q suggests fresh information; routed to %s", keyword, r.defaultAgent()),
			}
		}
	}
	return Decision{
		AgentName:  r.defaultAgent(),
		Confidence: 0.5,
		Reasoning:  fmt.Sprintf("No skill or keyword match; defaulted to %s", r.defaultAgent()),
	}
}

func (r *Router) defaultAgent() string {
	if r.DefaultAgent != "" {
		return r.DefaultAgent
	}
	return DefaultAgentName
}

func (r *Router) fallbackKeywords() []string {
	if len(r.FallbackKeywords) > 0 {
		return r.FallbackKeywords
	}
	return DefaultFallbackKeywords
}
