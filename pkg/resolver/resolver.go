// Package resolver implements the entity-argument resolver (§4.4): the
// Stage-0 scope gate that decides whether an utterance sets client-group
// scope, and the tag/fuzzy/semantic search that turns a bare reference
// into a resolved entity. This is the system's anti-hallucination
// boundary (I8) — it never guesses between multiple plausible matches,
// it reports Ambiguous and makes the caller choose.
package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/store"
)

// ClientGroupStore resolves and records client-group scope aliases.
type ClientGroupStore interface {
	// FindGroupsByAlias returns every client group whose stored alias
	// set matches text, exact or fuzzy.
	FindGroupsByAlias(ctx context.Context, text string) ([]contracts.ClientGroupRef, error)

	// SaveAlias persists a newly confirmed alias for a group (the
	// flywheel: a picker confirmation teaches the resolver for next
	// time).
	SaveAlias(ctx context.Context, groupID, alias string, source contracts.AliasSource) error
}

// EntityStore is the tag-indexed entity search surface, scoped to one
// client group so cross-tenant bleed-through is impossible by
// construction.
type EntityStore interface {
	FindByExactTag(ctx context.Context, clientGroupID, text string) ([]contracts.EntityMatch, error)
	FindByFuzzyTag(ctx context.Context, clientGroupID, text string) ([]contracts.EntityMatch, error)
}

// scopePatterns are the Stage-0 gate's recognized scope-setting phrases
// (§4.4). Each must capture the remaining phrase as its last group.
var scopePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^work(?:ing)?\s+on\s+(.+)$`),
	regexp.MustCompile(`(?i)^switch(?:ing)?\s+to\s+(.+)$`),
	regexp.MustCompile(`(?i)^set\s+client\s+to\s+(.+)$`),
	regexp.MustCompile(`(?i)^client\s+is\s+(.+)$`),
	regexp.MustCompile(`(?i)^load\s+(.+)$`),
}

// outputRefPattern matches a deferred reference to a prior step's
// output, e.g. "$1" or "$1.fund_id".
var outputRefPattern = regexp.MustCompile(`^\$[0-9]+(\.[A-Za-z_]+)?$`)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// verbLikePattern flags an utterance that already looks like a DSL call
// or explicit verb phrase, which disqualifies it from the Stage-0
// "short token, no verb indicator" scope heuristic.
var verbLikePattern = regexp.MustCompile(`(?i)\(|\b(create|ensure|link|add|run|issue|cancel|transfer|reconcile|materialize|register|upsert|attach)\b`)

// Resolver implements the Stage-0 scope gate and the §4.4 entity search.
// The embedder/vector store pair is optional: when nil, semantic search
// is skipped entirely rather than erroring, since tag and fuzzy search
// alone are a complete (if less recall-rich) implementation.
type Resolver struct {
	groups   ClientGroupStore
	entities EntityStore
	embedder store.Embedder
	vectors  store.VectorStore
}

// New builds a Resolver over the given client-group and entity search
// backends.
func New(groups ClientGroupStore, entities EntityStore) *Resolver {
	return &Resolver{groups: groups, entities: entities}
}

// WithSemanticSearch attaches an embedder and vector store, enabling the
// semantic leg of entity search (§3.7). Both must be non-nil or the
// attachment is a no-op, since a half-configured embedding pipeline is
// no better than none.
func (r *Resolver) WithSemanticSearch(embedder store.Embedder, vectors store.VectorStore) *Resolver {
	if embedder == nil || vectors == nil {
		return r
	}
	r.embedder = embedder
	r.vectors = vectors
	return r
}

// ResolveScope runs the Stage-0 scope gate against one utterance: does
// it set client-group scope, and if so, to what? A scope-phrase
// utterance must never fall through to entity search — getting this
// wrong would mean a "switch to Acme Capital" utterance gets treated as
// an attempt to find an entity named "switch to Acme Capital".
func (r *Resolver) ResolveScope(ctx context.Context, utterance string) (*contracts.ScopeOutcome, error) {
	trimmed := strings.TrimSpace(utterance)
	phrase, matched := matchScopePhrase(trimmed)
	if !matched {
		if !looksLikeShortScopeToken(trimmed) {
			return &contracts.ScopeOutcome{Kind: contracts.ScopeNotScopePhrase}, nil
		}
		phrase = trimmed
	}

	groups, err := r.groups.FindGroupsByAlias(ctx, phrase)
	if err != nil {
		return nil, err
	}
	switch len(groups) {
	case 0:
		return &contracts.ScopeOutcome{Kind: contracts.ScopeUnresolved}, nil
	case 1:
		return &contracts.ScopeOutcome{Kind: contracts.ScopeResolved, Group: &groups[0]}, nil
	default:
		return &contracts.ScopeOutcome{Kind: contracts.ScopeCandidates, Candidates: groups}, nil
	}
}

func matchScopePhrase(utterance string) (string, bool) {
	for _, p := range scopePatterns {
		if m := p.FindStringSubmatch(utterance); m != nil {
			return strings.TrimSpace(m[len(m)-1]), true
		}
	}
	return "", false
}

// looksLikeShortScopeToken is the fallback Stage-0 heuristic: a short
// utterance (at most 4 words) with none of the verb-like markers that
// would indicate an authored command is treated as a bare scope token,
// e.g. a user just typing a client's name to switch context.
func looksLikeShortScopeToken(utterance string) bool {
	if utterance == "" {
		return false
	}
	if verbLikePattern.MatchString(utterance) {
		return false
	}
	return len(strings.Fields(utterance)) <= 4
}

// ConfirmScopeSelection persists a picker-confirmed client-group alias,
// the flywheel that lets Stage-0 recognize the same phrasing next time
// without a repeat disambiguation round.
func (r *Resolver) ConfirmScopeSelection(ctx context.Context, groupID, alias string) error {
	return r.groups.SaveAlias(ctx, groupID, alias, contracts.AliasUserConfirmed)
}

// ResolveToken resolves one bare reference token to an entity within a
// client-group scope: a literal UUID resolves directly, a deferred
// output reference ($1 or $1.field) defers to a not-yet-executed
// statement, and anything else goes through tag/fuzzy/semantic search.
func (r *Resolver) ResolveToken(ctx context.Context, clientGroupID, token string) (*contracts.ResolutionResult, error) {
	token = strings.TrimSpace(token)
	if uuidPattern.MatchString(token) {
		return &contracts.ResolutionResult{
			Status: contracts.ResolutionResolved,
			Source: contracts.SourceDirectUUID,
			Resolved: &contracts.EntityMatch{
				EntityID:   token,
				Confidence: 1.0,
				MatchType:  contracts.MatchExact,
			},
		}, nil
	}
	if outputRefPattern.MatchString(token) {
		return &contracts.ResolutionResult{
			Status:      contracts.ResolutionDeferred,
			Source:      contracts.SourceOutputRef,
			DeferredRef: token,
		}, nil
	}
	return r.Search(ctx, clientGroupID, token)
}

// Search runs the combined tag/fuzzy/semantic search (§3.7) and folds
// the three legs' results into one ranked, deduplicated candidate list
// before applying the confidence-based outcome rules.
func (r *Resolver) Search(ctx context.Context, clientGroupID, text string) (*contracts.ResolutionResult, error) {
	byID := make(map[string]contracts.EntityMatch)

	exact, err := r.entities.FindByExactTag(ctx, clientGroupID, text)
	if err != nil {
		return nil, err
	}
	for _, m := range exact {
		m.Confidence = 1.0
		m.MatchType = contracts.MatchExact
		upsertBest(byID, m)
	}

	fuzzy, err := r.entities.FindByFuzzyTag(ctx, clientGroupID, text)
	if err != nil {
		return nil, err
	}
	for _, m := range fuzzy {
		m.MatchType = contracts.MatchFuzzy
		upsertBest(byID, m)
	}

	if r.embedder != nil && r.vectors != nil {
		semantic, err := r.searchSemantic(ctx, text)
		if err != nil {
			return nil, err
		}
		for _, m := range semantic {
			m.MatchType = contracts.MatchSemantic
			upsertBest(byID, m)
		}
	}

	matches := make([]contracts.EntityMatch, 0, len(byID))
	for _, m := range byID {
		if m.Confidence >= contracts.MinInclude {
			matches = append(matches, m)
		}
	}
	sortByConfidenceDesc(matches)

	return evaluateOutcome(matches), nil
}

func (r *Resolver) searchSemantic(ctx context.Context, text string) ([]contracts.EntityMatch, error) {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := r.vectors.Search(ctx, vec, 5)
	if err != nil {
		return nil, err
	}
	matches := make([]contracts.EntityMatch, 0, len(results))
	for _, res := range results {
		matches = append(matches, contracts.EntityMatch{
			EntityID:   res.ID,
			EntityName: res.Text,
			Confidence: float64(res.Score),
		})
	}
	return matches, nil
}

// upsertBest keeps the highest-confidence record seen for an entity ID
// across search legs, preferring an exact match's classification on a
// tie since it carries more evidentiary weight than a fuzzy one.
func upsertBest(byID map[string]contracts.EntityMatch, m contracts.EntityMatch) {
	existing, ok := byID[m.EntityID]
	if !ok || m.Confidence > existing.Confidence {
		byID[m.EntityID] = m
	}
}

func sortByConfidenceDesc(matches []contracts.EntityMatch) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Confidence > matches[j-1].Confidence; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}

// evaluateOutcome applies the §3.7 confidence rules. Two or more
// matches at or above HighConfidence are never silently collapsed to
// one — that would be the exact hallucination this boundary exists to
// prevent — so they come back Ambiguous with only the high-confidence
// matches as candidates; matches below the threshold are dropped.
func evaluateOutcome(matches []contracts.EntityMatch) *contracts.ResolutionResult {
	if len(matches) == 0 {
		return &contracts.ResolutionResult{Status: contracts.ResolutionFailed}
	}
	if len(matches) == 1 {
		m := matches[0]
		return &contracts.ResolutionResult{Status: contracts.ResolutionResolved, Source: contracts.SourceSearch, Resolved: &m}
	}

	var highConfidence []contracts.EntityMatch
	for _, m := range matches {
		if m.Confidence >= contracts.HighConfidence {
			highConfidence = append(highConfidence, m)
		}
	}
	if len(highConfidence) == 1 {
		m := highConfidence[0]
		return &contracts.ResolutionResult{Status: contracts.ResolutionResolved, Source: contracts.SourceSearch, Resolved: &m}
	}
	if len(highConfidence) > 1 {
		return &contracts.ResolutionResult{Status: contracts.ResolutionAmbiguous, Candidates: highConfidence}
	}
	return &contracts.ResolutionResult{Status: contracts.ResolutionAmbiguous, Candidates: matches}
}

// ValidatePickerSelection confirms a UI-returned selection is actually
// one of the candidates the resolver offered — never trust a selection
// ID that didn't come from the stored candidate set, since that would
// let a client bypass resolution entirely by supplying an arbitrary ID.
func ValidatePickerSelection(candidates []contracts.EntityMatch, selectedEntityID string) (*contracts.EntityMatch, bool) {
	for _, c := range candidates {
		if c.EntityID == selectedEntityID {
			return &c, true
		}
	}
	return nil, false
}
