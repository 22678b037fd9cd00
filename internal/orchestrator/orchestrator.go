// Package orchestrator composes the agent registry, the capability router,
// and the A2A client into the request-dispatch pipeline, and exposes the
// orchestrator itself as an A2A agent.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"lendline/internal/a2a"
	"lendline/internal/registry"
	"lendline/internal/router"
)

// Result is the outcome of one orchestrated request. Failures degrade to
// text in Response: the caller always has something to render as chat.
type Result struct {
	Success    bool    `json:"success"`
	AgentName  string  `json:"selected_agent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Response   string  `json:"response"`
}

// Orchestrator routes requests to remote agents and fulfils them over the
// A2A protocol.
type Orchestrator struct {
	Registry *registry.Registry
	Router   *router.Router
	Client   *a2a.Client
	Logger   *slog.Logger
}

// New wires an orchestrator from its parts.
func New(reg *registry.Registry, rt *router.Router, client *a2a.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Registry: reg, Router: rt, Client: client, Logger: logger}
}

// Process routes the request, invokes the selected agent, and formats the
// response. Protocol failures come back as Result text, not as an error.
func (o *Orchestrator) Process(ctx context.Context, request string) Result {
	decision := o.Router.Route(ctx, request)
	o.Logger.Info("routing request", "agent", decision.AgentName, "confidence", decision.Confidence)

	card, ok := o.Registry.Card(decision.AgentName)
	if !ok {
		return Result{
			Success:    false,
			AgentName:  decision.AgentName,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Response:   fmt.Sprintf("Agent %s not available", decision.AgentName),
		}
	}

	text, err := o.Client.Send(ctx, card.URL, request)
	if err != nil {
		o.Logger.Warn("agent call failed", "agent", decision.AgentName, "kind", a2a.KindOf(err), "error", err)
		return Result{
			Success:    false,
			AgentName:  decision.AgentName,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Response:   failureText(decision.AgentName, err),
		}
	}

	return Result{
		Success:    true,
		AgentName:  decision.AgentName,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		Response: fmt.Sprintf("%s Results\n\n%s\n\n_Confidence: %.2f | Reasoning: %s_",
			decision.AgentName, text, decision.Confidence, decision.Reasoning),
	}
}

// failureText renders a protocol error as user-facing chat text.
func failureText(agentName string, err error) string {
	switch a2a.KindOf(err) {
	case a2a.KindTimeout:
		return fmt.Sprintf("Agent timeout - no response received from %s", agentName)
	case a2a.KindRemoteFailure:
		return fmt.Sprintf("Agent error from %s: %v", agentName, err)
	default:
		return fmt.Sprintf("Error calling %s: %v", agentName, err)
	}
}

// Card returns the orchestrator's own capability manifest.
func Card(baseURL string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:        "Mortgage A2A Orchestrator",
		Description: "Intelligent orchestrator for mortgage processing agents",
		URL:         baseURL,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming:              false,
			PushNotifications:      true,
			StateTransitionHistory: false,
		},
		Skills: []a2a.Skill{
			{
				ID:          "mortgage_routing",
				Name:        "Mortgage Request Routing",
				Description: "Routing of mortgage-related queries to specialized agents",
				Tags:        []string{"mortgage", "routing", "orchestration", "coordination"},
			},
			{
				ID:          "web_search_coordination",
				Name:        "Web Search Coordination",
				Description: "Coordinating web searches for current mortgage rates and market information",
				Tags:        []string{"web", "search", "current", "rates", "market", "news"},
			},
			{
				ID:          "agent_management",
				Name:        "Agent Management",
				Description: "Managing and coordinating mortgage processing agents",
				Tags:        []string{"management", "coordination", "agents", "workflow"},
			},
		},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
}

// Server wraps the orchestrator as an A2A agent: inbound message/send calls
// create a task that completes with the orchestrated response.
func (o *Orchestrator) Server(baseURL string) *a2a.Server {
	return &a2a.Server{
		Card:         Card(baseURL),
		Async:        true,
		ArtifactName: "mortgage_orchestrator_result",
		Logger:       o.Logger,
		Responder: a2a.ResponderFunc(func(ctx context.Context, query string) (string, error) {
			result := o.Process(ctx, query)
			return result.Response, nil
		}),
	}
}
