package server

import (
	"encoding/json"

	"lendline/internal/a2a"
	"lendline/internal/domain"
)

// ChatRequest is one inbound chat message.
type ChatRequest struct {
	ThreadID   string                      `json:"thread_id,omitempty"`
	Message    string                      `json:"message"`
	PersonName string                      `json:"person_name,omitempty"`
	Context    *domain.ConversationContext `json:"context,omitempty"`
}

// ChatResponse carries the agent reply plus the lifecycle resolution.
type ChatResponse struct {
	ThreadID      string  `json:"thread_id"`
	Reply         string  `json:"reply"`
	AgentName     string  `json:"agent_name"`
	Confidence    float64 `json:"confidence"`
	Intent        string  `json:"intent"`
	ApplicationID string  `json:"application_id,omitempty"`
	Status        string  `json:"status"`
	Phase         string  `json:"phase"`
}

// DocumentRequest is an uploaded document plus its extracted entities.
type DocumentRequest struct {
	ApplicationID string                   `json:"application_id,omitempty"`
	PersonName    string                   `json:"person_name,omitempty"`
	Content       string                   `json:"content"`
	Entities      *domain.DocumentEntities `json:"entities,omitempty"`
}

type DocumentResponse struct {
	ApplicationID string `json:"application_id,omitempty"`
	Status        string `json:"status"`
	Phase         string `json:"phase"`
}

type SetPhaseRequest struct {
	Phase string `json:"phase" enum:"discovery,initiated,document_collection,in_progress,ready_for_review,submitted,processing,decision_made"`
}

type RouteRequest struct {
	Request string `json:"request"`
}

type ApplicationResponse struct {
	ID               string `json:"id"`
	ApplicantName    string `json:"applicant_name"`
	PrimaryApplicant string `json:"primary_applicant"`
	Phase            string `json:"phase"`
	CreatedFrom      string `json:"created_from,omitempty"`
	AutoCreated      bool   `json:"auto_created"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type ThreadResponse struct {
	ThreadID      string `json:"thread_id"`
	ApplicationID string `json:"application_id"`
	LinkedAt      string `json:"linked_at"`
}

type AgentResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url"`
	Version     string   `json:"version,omitempty"`
	Skills      []string `json:"skills"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func applicationResponse(app domain.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:               app.ID,
		ApplicantName:    app.ApplicantName,
		PrimaryApplicant: app.PrimaryApplicant,
		Phase:            string(app.Phase),
		CreatedFrom:      app.CreatedFrom,
		AutoCreated:      app.AutoCreated,
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        app.UpdatedAt,
	}
}

func mapApplications(items []domain.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(items))
	for _, app := range items {
		out = append(out, applicationResponse(app))
	}
	return out
}

func mapThreads(items []domain.ConversationThread) []ThreadResponse {
	out := make([]ThreadResponse, 0, len(items))
	for _, t := range items {
		out = append(out, ThreadResponse{
			ThreadID:      t.ThreadID,
			ApplicationID: t.ApplicationID,
			LinkedAt:      t.LinkedAt,
		})
	}
	return out
}

func mapAgents(cards []a2a.AgentCard) []AgentResponse {
	out := make([]AgentResponse, 0, len(cards))
	for _, card := range cards {
		skills := make([]string, 0, len(card.Skills))
		for _, skill := range card.Skills {
			skills = append(skills, skill.ID)
		}
		out = append(out, AgentResponse{
			Name:        card.Name,
			Description: card.Description,
			URL:         card.URL,
			Version:     card.Version,
			Skills:      skills,
		})
	}
	return out
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, evt := range items {
		payload := json.RawMessage("{}")
		if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage(evt.Payload)
		}
		out = append(out, EventResponse{
			ID:         evt.ID,
			TS:         evt.TS,
			Type:       evt.Type,
			EntityKind: evt.EntityKind,
			EntityID:   evt.EntityID,
			ActorID:    evt.ActorID,
			Payload:    payload,
		})
	}
	return out
}
