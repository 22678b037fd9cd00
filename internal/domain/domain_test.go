package domain

import "testing"

func TestPhaseRankOrdering(t *testing.T) {
	if PhaseRank(PhaseDiscovery) != 0 {
		t.Fatalf("discovery rank = %d", PhaseRank(PhaseDiscovery))
	}
	if PhaseRank(PhaseDecisionMade) != 7 {
		t.Fatalf("decision_made rank = %d", PhaseRank(PhaseDecisionMade))
	}
	if PhaseRank("no_such_phase") != -1 {
		t.Fatal("unknown phase should rank -1")
	}
	prev := -1
	for _, p := range []ApplicationPhase{
		PhaseDiscovery, PhaseInitiated, PhaseDocumentCollection, PhaseInProgress,
		PhaseReadyForReview, PhaseSubmitted, PhaseProcessing, PhaseDecisionMade,
	} {
		rank := PhaseRank(p)
		if rank <= prev {
			t.Fatalf("phase %s out of order (rank %d after %d)", p, rank, prev)
		}
		prev = rank
	}
}

func TestValidPhase(t *testing.T) {
	if !ValidPhase(PhaseSubmitted) {
		t.Fatal("submitted should be valid")
	}
	if ValidPhase("galaxy_brain") {
		t.Fatal("unknown phase should be invalid")
	}
	if ValidPhase("") {
		t.Fatal("empty phase should be invalid")
	}
}

func TestIsBackwardTransition(t *testing.T) {
	cases := []struct {
		from, to ApplicationPhase
		want     bool
	}{
		{PhaseDiscovery, PhaseInitiated, false},
		{PhaseInitiated, PhaseInitiated, false},
		{PhaseSubmitted, PhaseDiscovery, true},
		{PhaseDecisionMade, PhaseProcessing, true},
		{PhaseDiscovery, PhaseDecisionMade, false},
		{"unknown", PhaseDiscovery, false},
		{PhaseSubmitted, "unknown", false},
	}
	for _, tc := range cases {
		if got := IsBackwardTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("IsBackwardTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestConversationContextHasKeyFields(t *testing.T) {
	if (ConversationContext{}).HasKeyFields() {
		t.Fatal("empty context has no key fields")
	}
	if !(ConversationContext{FullName: "Ana"}).HasKeyFields() {
		t.Fatal("full name is a key field")
	}
	if !(ConversationContext{AnnualIncome: 85000}).HasKeyFields() {
		t.Fatal("income is a key field")
	}
	if !(ConversationContext{DownPayment: 40000}).HasKeyFields() {
		t.Fatal("down payment is a key field")
	}
	if (ConversationContext{CompletionPercentage: 90}).HasKeyFields() {
		t.Fatal("completion alone is not a key field")
	}
}
