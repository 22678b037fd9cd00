// Package lifecycle unifies mortgage application identity across the chat
// and document-upload entry points: intent detection, person identity
// resolution, find-or-create decisions, and the phase state machine.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lendline/internal/domain"
	"lendline/internal/graph"
)

// Mode selects how application creation handles concurrent callers.
type Mode string

const (
	// ModeBestEffort keeps the historical behavior: the containment search
	// and the create are independent queries, so two simultaneous requests
	// for the same person can both create an application.
	ModeBestEffort Mode = "best_effort"
	// ModeExclusive runs the search and the create as one store
	// transaction, trading throughput for at-most-one creation per name.
	ModeExclusive Mode = "exclusive"
)

// Detection statuses returned by FindOrCreateApplication.
const (
	StatusNoApplicationNeeded = "no_application_needed"
	StatusFoundExisting       = "found_existing"
	StatusCreatedNew          = "created_new"
	StatusWaitingForIntent    = "waiting_for_stronger_intent"
)

// Manager owns application identity decisions. It holds no application
// state of its own: every decision re-queries the store.
type Manager struct {
	Store  graph.Store
	Mode   Mode
	Now    func() time.Time
	Logger *slog.Logger
}

// New returns a manager in best-effort mode.
func New(store graph.Store, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return Manager{
		Store:  store,
		Mode:   ModeBestEffort,
		Now:    time.Now,
		Logger: logger,
	}
}

func (m Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

var readyToApplyPhrases = []string{
	"i want to apply", "start application", "apply for mortgage",
	"submit application", "need a loan", "ready to apply",
}

var seriousInterestPhrases = []string{
	"pre-qualification", "pre-approve", "what rate", "how much can i borrow",
	"get approved", "loan estimate", "what documents", "income verification",
}

// DetectIntent classifies how serious an interaction is. Document content
// always wins; an explicit user message is classified by phrase lists;
// otherwise conversation-state signals are consulted.
func DetectIntent(conversation *domain.ConversationContext, documentContent, userMessage string) domain.Intent {
	if documentContent != "" {
		return domain.IntentDocumentUpload
	}

	if userMessage != "" {
		messageLower := strings.ToLower(userMessage)
		for _, phrase := range readyToApplyPhrases {
			if strings.Contains(messageLower, phrase) {
				return domain.IntentReadyToApply
			}
		}
		for _, phrase := range seriousInterestPhrases {
			if strings.Contains(messageLower, phrase) {
				return domain.IntentSeriousInterest
			}
		}
		return domain.IntentCasualInquiry
	}

	if conversation != nil {
		if conversation.HasKeyFields() {
			return domain.IntentSeriousInterest
		}
		if conversation.CompletionPercentage > 30 {
			return domain.IntentReadyToApply
		}
	}
	return domain.IntentCasualInquiry
}

// FindOrCreateOptions are the identity signals of one interaction.
type FindOrCreateOptions struct {
	PersonName       string
	Conversation     *domain.ConversationContext
	DocumentEntities *domain.DocumentEntities
	Intent           domain.Intent
	ActorID          string
}

// Resolution is the outcome of a find-or-create decision. ApplicationID is
// empty when no application exists or was created.
type Resolution struct {
	ApplicationID string                  `json:"application_id,omitempty"`
	Status        string                  `json:"status"`
	Phase         domain.ApplicationPhase `json:"phase"`
}

// FindOrCreateApplication resolves which application an interaction belongs
// to, creating one when intent is strong enough.
func (m Manager) FindOrCreateApplication(ctx context.Context, opts FindOrCreateOptions) (Resolution, error) {
	person := resolveIdentity(opts.PersonName, opts.Conversation, opts.DocumentEntities)

	if person == "" {
		// Anonymous creation only for the strongest intents; anything
		// weaker returns without touching the store.
		if opts.Intent == domain.IntentDocumentUpload || opts.Intent == domain.IntentReadyToApply {
			return m.create(ctx, "", domain.PhaseInitiated, "unknown_person", opts.ActorID)
		}
		return Resolution{Status: StatusNoApplicationNeeded, Phase: domain.PhaseDiscovery}, nil
	}

	existing, err := m.Store.FindLatestApplicationByName(ctx, person)
	if err == nil {
		m.Logger.Info("found existing application", "application_id", existing.ID, "person", person)
		return Resolution{ApplicationID: existing.ID, Status: StatusFoundExisting, Phase: existing.Phase}, nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return Resolution{}, fmt.Errorf("find application for %s: %w", person, err)
	}

	if !shouldCreate(opts.Intent, opts.Conversation) {
		return Resolution{Status: StatusWaitingForIntent, Phase: domain.PhaseDiscovery}, nil
	}

	phase := domain.PhaseInitiated
	switch {
	case opts.Intent == domain.IntentDocumentUpload:
		phase = domain.PhaseDocumentCollection
	case opts.Conversation != nil && opts.Conversation.CompletionPercentage > 0:
		phase = domain.PhaseInProgress
	}

	if m.Mode == ModeExclusive {
		app := m.newApplication(person, phase, "unified_detection")
		resolved, created, err := m.Store.FindOrCreateApplicationExclusive(ctx, person, app, opts.ActorID)
		if err != nil {
			return Resolution{}, fmt.Errorf("find or create application for %s: %w", person, err)
		}
		status := StatusFoundExisting
		if created {
			status = StatusCreatedNew
		}
		return Resolution{ApplicationID: resolved.ID, Status: status, Phase: resolved.Phase}, nil
	}
	return m.create(ctx, person, phase, "unified_detection", opts.ActorID)
}

// resolveIdentity picks the person name by strict source priority: explicit
// name, then a Person entity from documents, then the conversation's
// full_name. First non-empty source wins; no fuzzy matching.
func resolveIdentity(personName string, conversation *domain.ConversationContext, entities *domain.DocumentEntities) string {
	if personName != "" {
		return personName
	}
	if entities != nil {
		for _, node := range entities.Nodes {
			if node.Type == "Person" && node.ID != "" {
				return node.ID
			}
		}
	}
	if conversation != nil && conversation.FullName != "" {
		return conversation.FullName
	}
	return ""
}

// shouldCreate gates creation on intent strength.
func shouldCreate(intent domain.Intent, conversation *domain.ConversationContext) bool {
	switch intent {
	case domain.IntentDocumentUpload, domain.IntentReadyToApply:
		return true
	case domain.IntentSeriousInterest:
		return conversation != nil && conversation.CompletionPercentage > 20
	}
	return false
}

func (m Manager) newApplication(person string, phase domain.ApplicationPhase, source string) domain.Application {
	name := person
	if name == "" {
		name = "Unknown"
	}
	now := m.now().UTC().Format(time.RFC3339)
	return domain.Application{
		ID:               NewApplicationID(),
		ApplicantName:    name,
		PrimaryApplicant: name,
		Phase:            phase,
		CreatedFrom:      source,
		AutoCreated:      true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (m Manager) create(ctx context.Context, person string, phase domain.ApplicationPhase, source, actorID string) (Resolution, error) {
	app := m.newApplication(person, phase, source)
	if err := m.Store.CreateApplication(ctx, app, actorID); err != nil {
		return Resolution{}, fmt.Errorf("create application: %w", err)
	}
	m.Logger.Info("created application", "application_id", app.ID, "applicant", app.ApplicantName, "phase", phase)
	return Resolution{ApplicationID: app.ID, Status: StatusCreatedNew, Phase: phase}, nil
}

// NewApplicationID generates an APP_<HEX8> identifier.
func NewApplicationID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "APP_" + strings.ToUpper(hex[:8])
}

// UpdatePhase writes the new phase unconditionally. Backward moves are
// logged as warnings, never rejected; unknown phases are.
func (m Manager) UpdatePhase(ctx context.Context, applicationID string, phase domain.ApplicationPhase, actorID string) error {
	if !domain.ValidPhase(phase) {
		return fmt.Errorf("invalid phase %q", phase)
	}
	existing, err := m.Store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if domain.IsBackwardTransition(existing.Phase, phase) {
		m.Logger.Warn("backward phase transition",
			"application_id", applicationID, "from", existing.Phase, "to", phase)
	}
	return m.Store.UpdateApplicationPhase(ctx, applicationID, phase, actorID)
}

// LinkConversation associates a chat thread with an application. Calling
// it repeatedly with the same pair is a no-op beyond refreshing linked_at.
func (m Manager) LinkConversation(ctx context.Context, threadID, applicationID, actorID string) error {
	if threadID == "" {
		return errors.New("thread_id required")
	}
	return m.Store.MergeConversationLink(ctx, threadID, applicationID, actorID)
}
