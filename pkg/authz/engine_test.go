package authz

import (
	"testing"

	"github.com/onboardkit/semos/pkg/contracts"
)

func baseActor() contracts.ActorContext {
	return contracts.ActorContext{
		ActorID:       "user:alice",
		Roles:         []string{"onboarding-officer"},
		Clearance:     contracts.ClassConfidential,
		Jurisdictions: []string{"US", "GB"},
	}
}

func TestEvaluate_AllowsWhenClearanceDominates(t *testing.T) {
	label := contracts.SecurityLabel{Classification: contracts.ClassInternal}
	d := Evaluate(baseActor(), label, contracts.PurposeOnboarding)
	if d.Verdict != contracts.VerdictAllow {
		t.Fatalf("expected Allow, got %+v", d)
	}
}

func TestEvaluate_DeniesWhenClearanceBelowClassification(t *testing.T) {
	label := contracts.SecurityLabel{Classification: contracts.ClassRestricted}
	d := Evaluate(baseActor(), label, contracts.PurposeOnboarding)
	if d.Verdict != contracts.VerdictDeny {
		t.Fatalf("expected Deny, got %+v", d)
	}
}

func TestEvaluate_DeniesOnJurisdictionMismatch(t *testing.T) {
	label := contracts.SecurityLabel{
		Classification: contracts.ClassInternal,
		Jurisdictions:  []string{"SG"},
	}
	d := Evaluate(baseActor(), label, contracts.PurposeOnboarding)
	if d.Verdict != contracts.VerdictDeny {
		t.Fatalf("expected Deny, got %+v", d)
	}
}

func TestEvaluate_AllowsOnJurisdictionOverlap(t *testing.T) {
	label := contracts.SecurityLabel{
		Classification: contracts.ClassInternal,
		Jurisdictions:  []string{"GB", "SG"},
	}
	d := Evaluate(baseActor(), label, contracts.PurposeOnboarding)
	if d.Verdict != contracts.VerdictAllow {
		t.Fatalf("expected Allow, got %+v", d)
	}
}

func TestEvaluate_DeniesOnPurposeLimitation(t *testing.T) {
	label := contracts.SecurityLabel{
		Classification:    contracts.ClassInternal,
		PurposeLimitation: []string{string(contracts.PurposeAudit)},
	}
	d := Evaluate(baseActor(), label, contracts.PurposeOnboarding)
	if d.Verdict != contracts.VerdictDeny {
		t.Fatalf("expected Deny, got %+v", d)
	}
}

func TestEvaluate_DeniesLLMServingUnderNoLLMExternal(t *testing.T) {
	label := contracts.SecurityLabel{
		Classification:   contracts.ClassInternal,
		HandlingControls: []contracts.HandlingControl{contracts.HandlingNoLLMExternal},
	}
	d := Evaluate(baseActor(), label, contracts.PurposeLLMServing)
	if d.Verdict != contracts.VerdictDeny {
		t.Fatalf("expected Deny, got %+v", d)
	}
}

func TestEvaluate_MasksByDefaultExceptForAudit(t *testing.T) {
	label := contracts.SecurityLabel{
		Classification:   contracts.ClassInternal,
		HandlingControls: []contracts.HandlingControl{contracts.HandlingMaskByDefault},
		PIIFields:        []string{"ssn", "date_of_birth"},
	}

	d := Evaluate(baseActor(), label, contracts.PurposeServicing)
	if d.Verdict != contracts.VerdictAllowWithMasking {
		t.Fatalf("expected AllowWithMasking, got %+v", d)
	}
	if len(d.MaskedFields) != 2 || d.MaskedFields[0] != "date_of_birth" {
		t.Fatalf("expected sorted masked fields, got %v", d.MaskedFields)
	}

	auditDecision := Evaluate(baseActor(), label, contracts.PurposeAudit)
	if auditDecision.Verdict != contracts.VerdictAllow {
		t.Fatalf("expected audit purpose to bypass masking, got %+v", auditDecision)
	}
}

func TestEvaluate_IsOrthogonalToGovernanceTier(t *testing.T) {
	// I4: ABAC decisions do not depend on governance tier at all — the
	// evaluator never receives one, so the same label+purpose always
	// produces the same verdict regardless of what tier called it.
	label := contracts.SecurityLabel{Classification: contracts.ClassRestricted}
	d1 := Evaluate(baseActor(), label, contracts.PurposeOnboarding)
	d2 := Evaluate(baseActor(), label, contracts.PurposeOnboarding)
	if d1.Verdict != d2.Verdict {
		t.Fatalf("expected deterministic verdicts, got %+v and %+v", d1, d2)
	}
}
