package domain

// ApplicationPhase is the lifecycle stage of a mortgage application.
// Phases are ordered; the lifecycle manager warns on backward moves but
// never rejects them.
type ApplicationPhase string

const (
	PhaseDiscovery          ApplicationPhase = "discovery"
	PhaseInitiated          ApplicationPhase = "initiated"
	PhaseDocumentCollection ApplicationPhase = "document_collection"
	PhaseInProgress         ApplicationPhase = "in_progress"
	PhaseReadyForReview     ApplicationPhase = "ready_for_review"
	PhaseSubmitted          ApplicationPhase = "submitted"
	PhaseProcessing         ApplicationPhase = "processing"
	PhaseDecisionMade       ApplicationPhase = "decision_made"
)

var phaseOrder = []ApplicationPhase{
	PhaseDiscovery,
	PhaseInitiated,
	PhaseDocumentCollection,
	PhaseInProgress,
	PhaseReadyForReview,
	PhaseSubmitted,
	PhaseProcessing,
	PhaseDecisionMade,
}

// PhaseRank returns the position of a phase in the lifecycle order,
// or -1 for an unknown phase.
func PhaseRank(p ApplicationPhase) int {
	for i, known := range phaseOrder {
		if known == p {
			return i
		}
	}
	return -1
}

// ValidPhase reports whether p is a known lifecycle phase.
func ValidPhase(p ApplicationPhase) bool {
	return PhaseRank(p) >= 0
}

// IsBackwardTransition reports whether moving from old to new walks the
// lifecycle backwards. Unknown phases are never considered backward.
func IsBackwardTransition(oldPhase, newPhase ApplicationPhase) bool {
	oldRank, newRank := PhaseRank(oldPhase), PhaseRank(newPhase)
	if oldRank < 0 || newRank < 0 {
		return false
	}
	return newRank < oldRank
}

// Intent is a coarse classification of how serious a mortgage inquiry is,
// used to gate application creation.
type Intent string

const (
	IntentCasualInquiry   Intent = "casual_inquiry"
	IntentSeriousInterest Intent = "serious_interest"
	IntentReadyToApply    Intent = "ready_to_apply"
	IntentDocumentUpload  Intent = "document_upload"
	IntentFinalSubmission Intent = "final_submission"
)

type Application struct {
	ID               string           `json:"id"`
	ApplicantName    string           `json:"applicant_name"`
	PrimaryApplicant string           `json:"primary_applicant"`
	Phase            ApplicationPhase `json:"phase" enum:"discovery,initiated,document_collection,in_progress,ready_for_review,submitted,processing,decision_made"`
	CreatedFrom      string           `json:"created_from,omitempty"`
	AutoCreated      bool             `json:"auto_created"`
	CreatedAt        string           `json:"created_at" format:"date-time"`
	UpdatedAt        string           `json:"updated_at" format:"date-time"`
}

// ConversationThread links a chat session to at most one application.
type ConversationThread struct {
	ThreadID      string `json:"thread_id"`
	ApplicationID string `json:"application_id"`
	LinkedAt      string `json:"linked_at" format:"date-time"`
}

// ConversationContext carries the fields a chat session has captured so far.
type ConversationContext struct {
	FullName             string  `json:"full_name,omitempty"`
	AnnualIncome         float64 `json:"annual_income,omitempty"`
	PurchasePrice        float64 `json:"purchase_price,omitempty"`
	DownPayment          float64 `json:"down_payment,omitempty"`
	CompletionPercentage float64 `json:"completion_percentage,omitempty"`
}

// HasKeyFields reports whether any of the personal-information fields that
// signal serious interest are set.
func (c ConversationContext) HasKeyFields() bool {
	return c.FullName != "" || c.AnnualIncome > 0 || c.PurchasePrice > 0 || c.DownPayment > 0
}

// EntityNode is a node extracted from an uploaded document.
type EntityNode struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// DocumentEntities is the entity graph extracted from uploaded documents.
type DocumentEntities struct {
	Nodes []EntityNode `json:"nodes,omitempty"`
}

// Event is one entry of the append-only lifecycle event log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// APIKey is a stored, hashed API credential.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at"`
}
