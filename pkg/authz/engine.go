// Package authz implements the ABAC evaluator: a pure, deterministic
// function from (actor, security label, purpose) to Allow / Deny /
// AllowWithMasking. It performs no I/O and holds no state across calls,
// so the same inputs always produce the same decision (I4).
package authz

import (
	"fmt"
	"sort"

	"github.com/onboardkit/semos/pkg/contracts"
)

// Evaluate runs the ABAC rules of §4.2 against one (actor, label,
// purpose) triple and returns the decision. All rules must hold for
// Allow; the first failing rule determines the Deny reason.
func Evaluate(actor contracts.ActorContext, label contracts.SecurityLabel, purpose contracts.AccessPurpose) contracts.AccessDecision {
	if err := checkClearance(actor, label); err != "" {
		return contracts.AccessDecision{Verdict: contracts.VerdictDeny, Reason: err}
	}
	if err := checkJurisdiction(actor, label); err != "" {
		return contracts.AccessDecision{Verdict: contracts.VerdictDeny, Reason: err}
	}
	if err := checkPurposeLimitation(label, purpose); err != "" {
		return contracts.AccessDecision{Verdict: contracts.VerdictDeny, Reason: err}
	}
	if err := checkNoLLMExternal(label, purpose); err != "" {
		return contracts.AccessDecision{Verdict: contracts.VerdictDeny, Reason: err}
	}

	if label.HasControl(contracts.HandlingMaskByDefault) && purpose != contracts.PurposeAudit {
		return contracts.AccessDecision{
			Verdict:      contracts.VerdictAllowWithMasking,
			MaskedFields: maskedFields(label),
		}
	}
	return contracts.AccessDecision{Verdict: contracts.VerdictAllow}
}

// checkClearance enforces actor.clearance >= label.classification in the
// total order public < internal < confidential < restricted, using the
// same map[T]int total-order idiom as the teacher's dataClassificationOrder.
func checkClearance(actor contracts.ActorContext, label contracts.SecurityLabel) string {
	actorRank, ok := contracts.ClassificationOrder[actor.Clearance]
	if !ok {
		return fmt.Sprintf("actor clearance %q is not a recognised classification", actor.Clearance)
	}
	labelRank, ok := contracts.ClassificationOrder[label.Classification]
	if !ok {
		return fmt.Sprintf("label classification %q is not a recognised classification", label.Classification)
	}
	if actorRank < labelRank {
		return fmt.Sprintf("actor clearance %q below required classification %q", actor.Clearance, label.Classification)
	}
	return ""
}

// checkJurisdiction enforces that actor and label jurisdictions overlap
// when the label restricts to a non-empty set.
func checkJurisdiction(actor contracts.ActorContext, label contracts.SecurityLabel) string {
	if len(label.Jurisdictions) == 0 {
		return ""
	}
	allowed := make(map[string]struct{}, len(label.Jurisdictions))
	for _, j := range label.Jurisdictions {
		allowed[j] = struct{}{}
	}
	for _, j := range actor.Jurisdictions {
		if _, ok := allowed[j]; ok {
			return ""
		}
	}
	return fmt.Sprintf("actor jurisdictions %v do not overlap label jurisdictions %v", actor.Jurisdictions, label.Jurisdictions)
}

// checkPurposeLimitation enforces purpose membership in the label's
// non-empty purpose_limitation set.
func checkPurposeLimitation(label contracts.SecurityLabel, purpose contracts.AccessPurpose) string {
	if len(label.PurposeLimitation) == 0 {
		return ""
	}
	for _, p := range label.PurposeLimitation {
		if contracts.AccessPurpose(p) == purpose {
			return ""
		}
	}
	return fmt.Sprintf("purpose %q not in label purpose_limitation %v", purpose, label.PurposeLimitation)
}

// checkNoLLMExternal denies llm-serving purposes against labels carrying
// the no-llm-external handling control.
func checkNoLLMExternal(label contracts.SecurityLabel, purpose contracts.AccessPurpose) string {
	if label.HasControl(contracts.HandlingNoLLMExternal) && purpose == contracts.PurposeLLMServing {
		return "no-llm-external handling control denies llm-serving purpose"
	}
	return ""
}

// maskedFields returns the label's PII-tagged fields in sorted order, so
// the masking list is independent of how the label was constructed.
func maskedFields(label contracts.SecurityLabel) []string {
	if len(label.PIIFields) == 0 {
		return nil
	}
	fields := make([]string, len(label.PIIFields))
	copy(fields, label.PIIFields)
	sort.Strings(fields)
	return fields
}
