package contracts

import "time"

// VerbContractSummary is the slice of a verb-contract snapshot the
// orchestrator needs to decide whether an actor may invoke it.
type VerbContractSummary struct {
	FQN              string  `json:"fqn"`
	Description      string  `json:"description"`
	Tier             GovernanceTier `json:"tier"`
	RankScore        float64 `json:"rank_score"`
	PreconditionsMet bool    `json:"preconditions_met"`
	SnapshotID       string  `json:"snapshot_id"`
}

// PruneReason enumerates why a candidate verb was excluded from the
// allowed set (§4.3).
type PruneReason string

const (
	PruneAbacDenied         PruneReason = "AbacDenied"
	PruneEntityKindMismatch PruneReason = "EntityKindMismatch"
	PruneTierExcluded       PruneReason = "TierExcluded"
	PruneTaxonomyNoOverlap  PruneReason = "TaxonomyNoOverlap"
	PrunePreconditionFailed PruneReason = "PreconditionFailed"
	PruneAgentModeBlocked   PruneReason = "AgentModeBlocked"
	PrunePolicyDenied       PruneReason = "PolicyDenied"
)

// PrunedVerb records one excluded candidate and why.
type PrunedVerb struct {
	FQN    string      `json:"fqn"`
	Reason PruneReason `json:"reason"`
}

// EnvelopeState distinguishes the three shapes a context envelope can
// take: an unavailable registry, a registry that answered with zero
// verbs, and a populated allowed set (§4.3).
type EnvelopeState string

const (
	EnvelopeStateUnavailable EnvelopeState = "unavailable"
	EnvelopeStateDenyAll     EnvelopeState = "deny_all"
	EnvelopeStateAllowedSet  EnvelopeState = "allowed_set"
)

// ContextEnvelope is the allowed-verb result for one (actor, subject,
// purpose) triple, fingerprinted for cheap equality checks (§3.4).
type ContextEnvelope struct {
	State                EnvelopeState         `json:"state"`
	AllowedVerbs         []string              `json:"allowed_verbs"`
	AllowedVerbContracts []VerbContractSummary `json:"allowed_verb_contracts"`
	PrunedVerbs          []PrunedVerb          `json:"pruned_verbs"`
	Fingerprint          string                `json:"fingerprint"`
	EvidenceGaps         []string              `json:"evidence_gaps,omitempty"`
	GovernanceSignals    []string              `json:"governance_signals,omitempty"`
	SnapshotSetID        string                `json:"snapshot_set_id,omitempty"`
	ComputedAt           time.Time             `json:"computed_at"`
}

// DenyAll reports whether the envelope answered with an empty allowed set.
func (e *ContextEnvelope) DenyAll() bool {
	return e != nil && e.State == EnvelopeStateDenyAll
}

// Unavailable reports whether the registry could not be reached.
func (e *ContextEnvelope) Unavailable() bool {
	return e == nil || e.State == EnvelopeStateUnavailable
}

// TOCTOUOutcome is the verdict of a time-of-check/time-of-use recheck.
type TOCTOUOutcome string

const (
	TOCTOUStillAllowed     TOCTOUOutcome = "StillAllowed"
	TOCTOUAllowedButDrifted TOCTOUOutcome = "AllowedButDrifted"
	TOCTOUDenied           TOCTOUOutcome = "Denied"
	TOCTOUSkipped          TOCTOUOutcome = "Skipped"
)

// TOCTOUResult is returned by the recheck between planning and execution.
type TOCTOUResult struct {
	Outcome        TOCTOUOutcome `json:"outcome"`
	Verb           string        `json:"verb,omitempty"`
	NewFingerprint string        `json:"new_fingerprint,omitempty"`
}

// ActorContext is the caller identity and clearance ABAC evaluates against.
type ActorContext struct {
	ActorID       string   `json:"actor_id"`
	Roles         []string `json:"roles,omitempty"`
	Department    string   `json:"department,omitempty"`
	Clearance     Classification `json:"clearance"`
	Jurisdictions []string `json:"jurisdictions,omitempty"`
}

// AccessPurpose is the declared reason a caller wants access, used for
// purpose-limitation checks and to carve out the audit exemption from
// mask-by-default.
type AccessPurpose string

const (
	PurposeAudit        AccessPurpose = "audit"
	PurposeOnboarding   AccessPurpose = "onboarding"
	PurposeServicing    AccessPurpose = "servicing"
	PurposeLLMServing   AccessPurpose = "llm-serving"
	PurposeReporting    AccessPurpose = "reporting"
)

// AccessVerdict is the ABAC decision kind.
type AccessVerdict string

const (
	VerdictAllow             AccessVerdict = "Allow"
	VerdictDeny              AccessVerdict = "Deny"
	VerdictAllowWithMasking  AccessVerdict = "AllowWithMasking"
)

// AccessDecision is the result of one ABAC evaluation (§4.2).
type AccessDecision struct {
	Verdict      AccessVerdict `json:"verdict"`
	Reason       string        `json:"reason,omitempty"`
	MaskedFields []string      `json:"masked_fields,omitempty"`
}
