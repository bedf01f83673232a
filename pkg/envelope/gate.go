// Package envelope computes the context envelope — the set of verbs an
// actor may invoke against a subject for a declared purpose — and
// performs the time-of-check/time-of-use recheck between planning and
// execution (§4.3). The gate is fail-closed: any error, an unreachable
// registry, or an empty allowed set all yield an envelope that grants
// nothing.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/onboardkit/semos/pkg/authz"
	"github.com/onboardkit/semos/pkg/contracts"
)

// CandidateVerb is one verb contract the orchestrator found in the
// registry for a subject, carrying the extra facts the gate needs to
// prune it: the security label ABAC evaluates, the entity kind the verb
// expects, the taxonomy tags it applies to, and whether its
// preconditions and policy checks already passed.
type CandidateVerb struct {
	Contract         contracts.VerbContractSummary
	Label            contracts.SecurityLabel
	EntityKind       string
	ExpectedKind     string
	ExcludedTiers    []contracts.GovernanceTier
	TaxonomyTags     []string
	PreconditionsMet bool
	AgentModeBlocked bool
	PolicyDenied     bool
}

// Gate computes context envelopes and TOCTOU rechecks. It carries no
// mutable state across calls — the clock is the only injected
// dependency, kept overridable for deterministic tests the way the
// teacher's EnvelopeGate exposes WithClock.
type Gate struct {
	clock func() time.Time
}

// NewGate constructs a Gate using the wall clock.
func NewGate() *Gate {
	return &Gate{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// Unavailable returns the distinguished envelope used when the registry
// could not be reached to list candidates at all.
func Unavailable() *contracts.ContextEnvelope {
	return &contracts.ContextEnvelope{
		State:       contracts.EnvelopeStateUnavailable,
		ComputedAt:  time.Now(),
	}
}

// Compute evaluates ABAC and the structured prune rules against every
// candidate and returns the resulting context envelope (§4.3). actor,
// purpose and subjectTaxonomyTags are the query; candidates is the
// registry's answer for the subject's entity kind.
func (g *Gate) Compute(actor contracts.ActorContext, purpose contracts.AccessPurpose, subjectTaxonomyTags []string, candidates []CandidateVerb) *contracts.ContextEnvelope {
	now := g.clock()

	var allowed []string
	var allowedContracts []contracts.VerbContractSummary
	var pruned []contracts.PrunedVerb

	for _, c := range candidates {
		if reason, ok := pruneReason(actor, purpose, subjectTaxonomyTags, c); ok {
			pruned = append(pruned, contracts.PrunedVerb{FQN: c.Contract.FQN, Reason: reason})
			continue
		}
		allowed = append(allowed, c.Contract.FQN)
		allowedContracts = append(allowedContracts, c.Contract)
	}

	state := contracts.EnvelopeStateAllowedSet
	if len(allowed) == 0 {
		state = contracts.EnvelopeStateDenyAll
	}

	return &contracts.ContextEnvelope{
		State:                state,
		AllowedVerbs:         allowed,
		AllowedVerbContracts: allowedContracts,
		PrunedVerbs:          pruned,
		Fingerprint:          Fingerprint(allowed),
		ComputedAt:           now,
	}
}

// pruneReason checks the structured prune rules in the order named by
// §4.3's enumerated set, so the first failing check determines the
// reason reported for an excluded candidate.
func pruneReason(actor contracts.ActorContext, purpose contracts.AccessPurpose, subjectTaxonomyTags []string, c CandidateVerb) (contracts.PruneReason, bool) {
	decision := authz.Evaluate(actor, c.Label, purpose)
	if decision.Verdict == contracts.VerdictDeny {
		return contracts.PruneAbacDenied, true
	}

	if c.ExpectedKind != "" && c.EntityKind != "" && c.ExpectedKind != c.EntityKind {
		return contracts.PruneEntityKindMismatch, true
	}

	for _, excluded := range c.ExcludedTiers {
		if excluded == c.Contract.Tier {
			return contracts.PruneTierExcluded, true
		}
	}

	if !taxonomyOverlaps(c.TaxonomyTags, subjectTaxonomyTags) {
		return contracts.PruneTaxonomyNoOverlap, true
	}

	if !c.PreconditionsMet {
		return contracts.PrunePreconditionFailed, true
	}

	if c.AgentModeBlocked {
		return contracts.PruneAgentModeBlocked, true
	}

	if c.PolicyDenied {
		return contracts.PrunePolicyDenied, true
	}

	return "", false
}

// taxonomyOverlaps reports whether the candidate's taxonomy tags
// (if any) intersect the subject's tags. A candidate with no declared
// tags applies to every subject.
func taxonomyOverlaps(candidateTags, subjectTags []string) bool {
	if len(candidateTags) == 0 {
		return true
	}
	subjectSet := make(map[string]struct{}, len(subjectTags))
	for _, t := range subjectTags {
		subjectSet[t] = struct{}{}
	}
	for _, t := range candidateTags {
		if _, ok := subjectSet[t]; ok {
			return true
		}
	}
	return false
}

// Fingerprint computes "v1:" + hex(sha256(sorted fqns joined by "\n")),
// deliberately not JCS: the fingerprint input is a plain sorted line
// list, not a JSON document (§4.3).
func Fingerprint(fqns []string) string {
	sorted := make([]string, len(fqns))
	copy(sorted, fqns)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return "v1:" + hex.EncodeToString(sum[:])
}

// Recheck implements the TOCTOU recheck between planning and execution:
// a fresh envelope is computed and compared against the one the plan was
// built against.
func (g *Gate) Recheck(prior, fresh *contracts.ContextEnvelope, selectedVerb string) *contracts.TOCTOUResult {
	if prior.Unavailable() || fresh.Unavailable() {
		return &contracts.TOCTOUResult{Outcome: contracts.TOCTOUSkipped}
	}

	if prior.Fingerprint == fresh.Fingerprint {
		return &contracts.TOCTOUResult{Outcome: contracts.TOCTOUStillAllowed}
	}

	for _, v := range fresh.AllowedVerbs {
		if v == selectedVerb {
			return &contracts.TOCTOUResult{
				Outcome:        contracts.TOCTOUAllowedButDrifted,
				Verb:           selectedVerb,
				NewFingerprint: fresh.Fingerprint,
			}
		}
	}

	return &contracts.TOCTOUResult{
		Outcome:        contracts.TOCTOUDenied,
		Verb:           selectedVerb,
		NewFingerprint: fresh.Fingerprint,
	}
}
