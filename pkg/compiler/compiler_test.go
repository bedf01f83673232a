package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/dsl"
	"github.com/onboardkit/semos/pkg/verbs"
)

func resolveBare(t *testing.T, src string) *contracts.ResolvedProgram {
	t.Helper()
	prog, diag := dsl.Parse(src)
	require.Nil(t, diag)
	statements := make([]contracts.ResolvedStatement, len(prog.Statements))
	for i, stmt := range prog.Statements {
		statements[i] = contracts.ResolvedStatement{Index: i, Statement: stmt}
	}
	return &contracts.ResolvedProgram{Statements: statements, Symbols: map[string]contracts.SymbolInfo{}}
}

func TestCompile_SimpleCallProducesOneOpWithNaturalKey(t *testing.T) {
	c := New(verbs.Default())
	resolved := resolveBare(t, `(entity.ensure :entity_type "cbu" :name "Acme" :as @cbu1)`)

	out := c.Compile(resolved)
	require.Empty(t, out.Errors)
	require.Len(t, out.Ops, 1)
	assert.Equal(t, contracts.OpEnsureEntity, out.Ops[0].Family)
	assert.Equal(t, "cbu(Acme)", out.Ops[0].Produces)
	assert.Equal(t, "cbu(Acme)", out.Symbols["cbu1"])
}

func TestCompile_SymbolRefWiresConsumesToProducerKey(t *testing.T) {
	c := New(verbs.Default())
	resolved := resolveBare(t, `
		(entity.ensure :entity_type "cbu" :name "Acme" :as @cbu1)
		(custody.add_universe :cbu @cbu1 :name "EQ")
	`)

	out := c.Compile(resolved)
	require.Empty(t, out.Errors)
	require.Len(t, out.Ops, 2)
	assert.Equal(t, []string{"cbu(Acme)"}, out.Ops[1].Consumes)
}

func TestCompile_EntityRefPopulatesResolvedKeyFromResolutions(t *testing.T) {
	c := New(verbs.Default())
	resolved := resolveBare(t, `(custody.add_universe :cbu cbu:"Acme Capital" :name "EQ")`)
	resolved.Statements[0].Resolutions = map[string]contracts.ResolutionResult{
		"cbu": {Status: contracts.ResolutionResolved, Resolved: &contracts.EntityMatch{EntityID: "e1"}},
	}

	out := c.Compile(resolved)
	require.Empty(t, out.Errors)
	require.Len(t, out.Ops, 1)
	assert.Equal(t, "e1", out.Ops[0].Args["cbu"].ResolvedKey)
}

func TestCompile_UnresolvedEntityRefProducesCompileErrorWithoutHalting(t *testing.T) {
	c := New(verbs.Default())
	resolved := resolveBare(t, `
		(custody.add_universe :cbu cbu:"Nobody" :name "EQ")
		(entity.ensure :entity_type "cbu" :name "Other")
	`)

	out := c.Compile(resolved)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 0, out.Errors[0].StatementIndex)
	require.Len(t, out.Ops, 1) // the second statement still compiles
}

func TestCompile_UnknownVerbProducesCompileError(t *testing.T) {
	c := New(verbs.Default())
	resolved := resolveBare(t, `(entity.ensur :entity_type "cbu" :name "Acme")`)

	out := c.Compile(resolved)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, contracts.CodeUnknownVerb, out.Errors[0].Code)
	assert.Empty(t, out.Ops)
}

func TestCompile_UnresolvedSymbolProducesCompileError(t *testing.T) {
	c := New(verbs.Default())
	resolved := resolveBare(t, `(custody.add_universe :cbu @ghost :name "EQ")`)

	out := c.Compile(resolved)
	require.Len(t, out.Errors, 1)
	assert.Empty(t, out.Ops)
}

func TestCompile_NestedVerbCallFlattensIntoPrecedingOp(t *testing.T) {
	c := New(verbs.Default())
	resolved := resolveBare(t, `
		(entity.link_role :cbu (entity.ensure :entity_type "cbu" :name "Acme") :entity e1 :role "director")
	`)

	out := c.Compile(resolved)
	require.Empty(t, out.Errors)
	require.Len(t, out.Ops, 2)
	assert.Equal(t, contracts.OpEnsureEntity, out.Ops[0].Family)
	assert.Equal(t, contracts.OpLinkRole, out.Ops[1].Family)
	assert.Equal(t, contracts.NodeSymbolRef, out.Ops[1].Args["cbu"].Kind)
	assert.Equal(t, []string{out.Ops[0].Produces}, out.Ops[1].Consumes)
}
