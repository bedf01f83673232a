package contracts

// MatchType classifies how an entity match was found (§3.7).
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchSemantic MatchType = "semantic"
)

// Confidence thresholds from §3.7.
const (
	HighConfidence = 0.7
	MinInclude     = 0.3
)

// EntityMatch is one candidate returned by the resolver's search path.
type EntityMatch struct {
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	MatchedTag string    `json:"matched_tag,omitempty"`
	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`
}

// ResolutionStatus is the outcome of resolving one entity reference.
type ResolutionStatus string

const (
	ResolutionResolved  ResolutionStatus = "Resolved"
	ResolutionAmbiguous ResolutionStatus = "Ambiguous"
	ResolutionFailed    ResolutionStatus = "Failed"
	ResolutionDeferred  ResolutionStatus = "Deferred"
)

// ResolutionSource records which rule produced a Resolved/Deferred result.
type ResolutionSource string

const (
	SourceDirectUUID ResolutionSource = "DirectUuid"
	SourceOutputRef  ResolutionSource = "OutputRef"
	SourceSearch     ResolutionSource = "Search"
)

// ResolutionResult is the resolver's verdict for one entity reference.
type ResolutionResult struct {
	Status    ResolutionStatus `json:"status"`
	Source    ResolutionSource `json:"source,omitempty"`
	Resolved  *EntityMatch     `json:"resolved,omitempty"`
	Candidates []EntityMatch   `json:"candidates,omitempty"`
	DeferredRef string         `json:"deferred_ref,omitempty"` // e.g. "$1.fund_id"
}

// ScopeOutcomeKind is the result kind of the Stage-0 scope gate (§4.4).
type ScopeOutcomeKind string

const (
	ScopeResolved      ScopeOutcomeKind = "Resolved"
	ScopeCandidates    ScopeOutcomeKind = "Candidates"
	ScopeUnresolved    ScopeOutcomeKind = "Unresolved"
	ScopeNotScopePhrase ScopeOutcomeKind = "NotScopePhrase"
)

// ClientGroupRef is a resolved client-group scope binding.
type ClientGroupRef struct {
	ClientGroupID   string `json:"client_group_id"`
	ClientGroupName string `json:"client_group_name"`
}

// ScopeOutcome is what the Stage-0 gate returns for one utterance.
type ScopeOutcome struct {
	Kind       ScopeOutcomeKind `json:"kind"`
	Group      *ClientGroupRef  `json:"group,omitempty"`
	Candidates []ClientGroupRef `json:"candidates,omitempty"`
}

// AliasSource records where a stored client-group alias came from.
type AliasSource string

const (
	AliasSeed          AliasSource = "seed"
	AliasUserConfirmed AliasSource = "user_confirmed"
)

// ResolverOutcomeKind is the top-level wire-shape discriminator (§6.2).
type ResolverOutcomeKind string

const (
	OutcomeScopeResolved   ResolverOutcomeKind = "scope_resolved"
	OutcomeScopeCandidates ResolverOutcomeKind = "scope_candidates"
	OutcomeVerbMatch       ResolverOutcomeKind = "verb_match"
	OutcomeNoMatch         ResolverOutcomeKind = "no_match"
)

// VerbCandidate is a scored verb-discovery candidate surfaced to the UI.
type VerbCandidate struct {
	Verb  string  `json:"verb"`
	Score float64 `json:"score"`
}

// UnresolvedRef describes one entity reference the resolver could not
// resolve, with UI-facing suggestions drawn only from the stored set.
type UnresolvedRef struct {
	EntityType  string       `json:"entity_type"`
	Value       string       `json:"value"`
	Suggestions []EntityMatch `json:"suggestions,omitempty"`
}

// ResolverOutcome is the wire shape returned to the caller of one
// utterance-resolution round (§6.2).
type ResolverOutcome struct {
	Outcome        ResolverOutcomeKind `json:"outcome"`
	ScopeContext   *ClientGroupRef     `json:"scope_context,omitempty"`
	DSL            string              `json:"dsl,omitempty"`
	VerbCandidates []VerbCandidate     `json:"verb_candidates,omitempty"`
	UnresolvedRefs []UnresolvedRef     `json:"unresolved_refs,omitempty"`
}
