// Package contracts holds the wire types shared across the semantic
// registry, the DSL pipeline, and the materialiser. Nothing in this
// package performs I/O; it is the vocabulary every other package imports.
package contracts

import "time"

// ObjectType enumerates the governed/operational object kinds the
// registry can hold a snapshot of.
type ObjectType string

const (
	ObjectAttributeDef        ObjectType = "attribute-def"
	ObjectEntityTypeDef       ObjectType = "entity-type-def"
	ObjectRelationshipTypeDef ObjectType = "relationship-type-def"
	ObjectVerbContract        ObjectType = "verb-contract"
	ObjectTaxonomyDef         ObjectType = "taxonomy-def"
	ObjectTaxonomyNode        ObjectType = "taxonomy-node"
	ObjectMembershipRule      ObjectType = "membership-rule"
	ObjectViewDef             ObjectType = "view-def"
	ObjectPolicyRule          ObjectType = "policy-rule"
	ObjectEvidenceRequirement ObjectType = "evidence-requirement"
	ObjectDocumentTypeDef     ObjectType = "document-type-def"
	ObjectObservationDef      ObjectType = "observation-def"
	ObjectDerivationSpec      ObjectType = "derivation-spec"
)

// Status is the lifecycle state of a snapshot row.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusRetired   Status = "retired"
)

// GovernanceTier partitions objects into the approval path they require.
type GovernanceTier string

const (
	TierGoverned    GovernanceTier = "governed"
	TierOperational GovernanceTier = "operational"
)

// TrustClass expresses how much weight a consumer may place on an object.
type TrustClass string

const (
	TrustProof           TrustClass = "proof"
	TrustDecisionSupport TrustClass = "decision-support"
	TrustConvenience     TrustClass = "convenience"
)

// ChangeType records why a new snapshot was appended.
type ChangeType string

const (
	ChangeCreated     ChangeType = "created"
	ChangeNonBreaking ChangeType = "non-breaking"
	ChangeBreaking    ChangeType = "breaking"
	ChangePromotion   ChangeType = "promotion"
	ChangeRetirement  ChangeType = "retirement"
)

// AutoApprover is the approver marker stamped on auto-approved operational
// snapshots (§3.1).
const AutoApprover = "auto"

// Snapshot is one immutable, append-only row in the registry.
type Snapshot struct {
	SnapshotID     string         `json:"snapshot_id"`
	SnapshotSetID  string         `json:"snapshot_set_id,omitempty"`
	ObjectType     ObjectType     `json:"object_type"`
	ObjectID       string         `json:"object_id"`
	VersionMajor   int            `json:"version_major"`
	VersionMinor   int            `json:"version_minor"`
	Status         Status         `json:"status"`
	GovernanceTier GovernanceTier `json:"governance_tier"`
	TrustClass     TrustClass     `json:"trust_class"`
	SecurityLabel  SecurityLabel  `json:"security_label"`
	EffectiveFrom  time.Time      `json:"effective_from"`
	EffectiveUntil *time.Time     `json:"effective_until,omitempty"`
	PredecessorID  string         `json:"predecessor_id,omitempty"`
	ChangeType     ChangeType     `json:"change_type"`
	ChangeRationale string        `json:"change_rationale,omitempty"`
	CreatedBy      string         `json:"created_by"`
	ApprovedBy     string         `json:"approved_by,omitempty"`
	Definition     []byte         `json:"definition"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Classification is the total order public<internal<confidential<restricted.
type Classification string

const (
	ClassPublic       Classification = "public"
	ClassInternal     Classification = "internal"
	ClassConfidential Classification = "confidential"
	ClassRestricted   Classification = "restricted"
)

// ClassificationOrder gives each classification its rank in the total
// order; higher is more sensitive. Mirrors the fail-closed lookup-table
// idiom used throughout this codebase for ordered enums.
var ClassificationOrder = map[Classification]int{
	ClassPublic:       0,
	ClassInternal:     1,
	ClassConfidential: 2,
	ClassRestricted:   3,
}

// HandlingControl enumerates the extra handling obligations a security
// label can carry.
type HandlingControl string

const (
	HandlingMaskByDefault    HandlingControl = "mask-by-default"
	HandlingNoExport         HandlingControl = "no-export"
	HandlingDualControl      HandlingControl = "dual-control"
	HandlingSecureViewerOnly HandlingControl = "secure-viewer-only"
	HandlingNoLLMExternal    HandlingControl = "no-llm-external"
)

// SecurityLabel travels with every governed object and every piece of
// data derived from it (§3.2). Inheritance across derivation is strict
// unless a derivation-spec explicitly relaxes it.
type SecurityLabel struct {
	Classification    Classification    `json:"classification"`
	PII               bool              `json:"pii"`
	PIIFields         []string          `json:"pii_fields,omitempty"`
	Jurisdictions     []string          `json:"jurisdictions,omitempty"`
	PurposeLimitation []string          `json:"purpose_limitation,omitempty"`
	HandlingControls  []HandlingControl `json:"handling_controls,omitempty"`
}

// HasControl reports whether a handling control is present on the label.
func (l SecurityLabel) HasControl(c HandlingControl) bool {
	for _, hc := range l.HandlingControls {
		if hc == c {
			return true
		}
	}
	return false
}

// DecisionRecord pins every object consulted to reach a decision (§3.3).
type DecisionRecord struct {
	DecisionID        string            `json:"decision_id"`
	PlanID            string            `json:"plan_id,omitempty"`
	StepID            string            `json:"step_id,omitempty"`
	ContextRef        string            `json:"context_ref,omitempty"`
	ChosenAction      string            `json:"chosen_action"`
	Alternatives      []string          `json:"alternatives_considered,omitempty"`
	PositiveEvidence  []string          `json:"positive_evidence,omitempty"`
	NegativeEvidence  []string          `json:"negative_evidence,omitempty"`
	PolicyVerdicts    map[string]string `json:"policy_verdicts,omitempty"`
	SnapshotManifest  map[string]string `json:"snapshot_manifest"`
	Confidence        float64           `json:"confidence"`
	Escalation        bool              `json:"escalation"`
	Actor             string            `json:"actor"`
	Timestamp         time.Time         `json:"timestamp"`
}
