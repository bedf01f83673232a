package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardkit/semos/pkg/contracts"
)

type fakeGroups struct {
	byAlias map[string][]contracts.ClientGroupRef
	saved   []string
}

func (f *fakeGroups) FindGroupsByAlias(ctx context.Context, text string) ([]contracts.ClientGroupRef, error) {
	return f.byAlias[text], nil
}

func (f *fakeGroups) SaveAlias(ctx context.Context, groupID, alias string, source contracts.AliasSource) error {
	f.saved = append(f.saved, groupID+":"+alias+":"+string(source))
	return nil
}

type fakeEntities struct {
	exact map[string][]contracts.EntityMatch
	fuzzy map[string][]contracts.EntityMatch
}

func (f *fakeEntities) FindByExactTag(ctx context.Context, clientGroupID, text string) ([]contracts.EntityMatch, error) {
	return f.exact[text], nil
}

func (f *fakeEntities) FindByFuzzyTag(ctx context.Context, clientGroupID, text string) ([]contracts.EntityMatch, error) {
	return f.fuzzy[text], nil
}

func TestResolveScope_RecognizesScopePhraseAndResolvesSingleGroup(t *testing.T) {
	groups := &fakeGroups{byAlias: map[string][]contracts.ClientGroupRef{
		"Acme Capital": {{ClientGroupID: "g1", ClientGroupName: "Acme Capital"}},
	}}
	r := New(groups, &fakeEntities{})

	outcome, err := r.ResolveScope(context.Background(), "switch to Acme Capital")
	require.NoError(t, err)
	require.Equal(t, contracts.ScopeResolved, outcome.Kind)
	assert.Equal(t, "g1", outcome.Group.ClientGroupID)
}

func TestResolveScope_AmbiguousAliasReturnsCandidates(t *testing.T) {
	groups := &fakeGroups{byAlias: map[string][]contracts.ClientGroupRef{
		"Acme": {{ClientGroupID: "g1"}, {ClientGroupID: "g2"}},
	}}
	r := New(groups, &fakeEntities{})

	outcome, err := r.ResolveScope(context.Background(), "work on Acme")
	require.NoError(t, err)
	assert.Equal(t, contracts.ScopeCandidates, outcome.Kind)
	assert.Len(t, outcome.Candidates, 2)
}

func TestResolveScope_NonScopePhraseFallsThroughUnrecognized(t *testing.T) {
	r := New(&fakeGroups{}, &fakeEntities{})
	outcome, err := r.ResolveScope(context.Background(), "create a new ensure case for this CBU with a workstream")
	require.NoError(t, err)
	assert.Equal(t, contracts.ScopeNotScopePhrase, outcome.Kind)
}

func TestResolveScope_ShortTokenWithNoVerbTreatedAsScope(t *testing.T) {
	groups := &fakeGroups{byAlias: map[string][]contracts.ClientGroupRef{
		"Acme Capital": {{ClientGroupID: "g1"}},
	}}
	r := New(groups, &fakeEntities{})
	outcome, err := r.ResolveScope(context.Background(), "Acme Capital")
	require.NoError(t, err)
	assert.Equal(t, contracts.ScopeResolved, outcome.Kind)
}

func TestResolveToken_DirectUUIDResolvesWithoutSearch(t *testing.T) {
	r := New(&fakeGroups{}, &fakeEntities{})
	result, err := r.ResolveToken(context.Background(), "g1", "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")
	require.NoError(t, err)
	require.Equal(t, contracts.ResolutionResolved, result.Status)
	assert.Equal(t, contracts.SourceDirectUUID, result.Source)
}

func TestResolveToken_OutputRefDefers(t *testing.T) {
	r := New(&fakeGroups{}, &fakeEntities{})
	result, err := r.ResolveToken(context.Background(), "g1", "$1.fund_id")
	require.NoError(t, err)
	assert.Equal(t, contracts.ResolutionDeferred, result.Status)
	assert.Equal(t, "$1.fund_id", result.DeferredRef)
}

func TestSearch_NoMatchesFails(t *testing.T) {
	r := New(&fakeGroups{}, &fakeEntities{})
	result, err := r.Search(context.Background(), "g1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, contracts.ResolutionFailed, result.Status)
}

func TestSearch_SingleMatchResolves(t *testing.T) {
	entities := &fakeEntities{exact: map[string][]contracts.EntityMatch{
		"Acme": {{EntityID: "e1", EntityName: "Acme"}},
	}}
	r := New(&fakeGroups{}, entities)
	result, err := r.Search(context.Background(), "g1", "Acme")
	require.NoError(t, err)
	require.Equal(t, contracts.ResolutionResolved, result.Status)
	assert.Equal(t, "e1", result.Resolved.EntityID)
	assert.Equal(t, 1.0, result.Resolved.Confidence)
}

func TestSearch_MultipleHighConfidenceMatchesAreAmbiguousNotGuessed(t *testing.T) {
	entities := &fakeEntities{fuzzy: map[string][]contracts.EntityMatch{
		"Acme": {
			{EntityID: "e1", EntityName: "Acme Capital", Confidence: 0.9},
			{EntityID: "e2", EntityName: "Acme Ventures", Confidence: 0.85},
		},
	}}
	r := New(&fakeGroups{}, entities)
	result, err := r.Search(context.Background(), "g1", "Acme")
	require.NoError(t, err)
	require.Equal(t, contracts.ResolutionAmbiguous, result.Status)
	assert.Len(t, result.Candidates, 2)
}

func TestSearch_AllBelowHighConfidenceAreAmbiguous(t *testing.T) {
	entities := &fakeEntities{fuzzy: map[string][]contracts.EntityMatch{
		"Acm": {
			{EntityID: "e1", EntityName: "Acme Capital", Confidence: 0.5},
			{EntityID: "e2", EntityName: "Acme Ventures", Confidence: 0.4},
		},
	}}
	r := New(&fakeGroups{}, entities)
	result, err := r.Search(context.Background(), "g1", "Acm")
	require.NoError(t, err)
	assert.Equal(t, contracts.ResolutionAmbiguous, result.Status)
	assert.Len(t, result.Candidates, 2)
}

func TestSearch_ExactMatchWinsOverFuzzyForSameEntity(t *testing.T) {
	entities := &fakeEntities{
		exact: map[string][]contracts.EntityMatch{"Acme": {{EntityID: "e1", EntityName: "Acme"}}},
		fuzzy: map[string][]contracts.EntityMatch{"Acme": {{EntityID: "e1", EntityName: "Acme", Confidence: 0.4}}},
	}
	r := New(&fakeGroups{}, entities)
	result, err := r.Search(context.Background(), "g1", "Acme")
	require.NoError(t, err)
	require.Equal(t, contracts.ResolutionResolved, result.Status)
	assert.Equal(t, contracts.MatchExact, result.Resolved.MatchType)
	assert.Equal(t, 1.0, result.Resolved.Confidence)
}

func TestValidatePickerSelection_RejectsSelectionOutsideCandidateSet(t *testing.T) {
	candidates := []contracts.EntityMatch{{EntityID: "e1"}, {EntityID: "e2"}}
	_, ok := ValidatePickerSelection(candidates, "e3")
	assert.False(t, ok)

	m, ok := ValidatePickerSelection(candidates, "e2")
	require.True(t, ok)
	assert.Equal(t, "e2", m.EntityID)
}

func TestConfirmScopeSelection_PersistsUserConfirmedAlias(t *testing.T) {
	groups := &fakeGroups{byAlias: map[string][]contracts.ClientGroupRef{}}
	r := New(groups, &fakeEntities{})
	require.NoError(t, r.ConfirmScopeSelection(context.Background(), "g1", "Acme Capital"))
	require.Len(t, groups.saved, 1)
	assert.Equal(t, "g1:Acme Capital:user_confirmed", groups.saved[0])
}
