package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardkit/semos/pkg/contracts"
)

func TestParse_SimpleVerbCallWithBinding(t *testing.T) {
	prog, diag := Parse(`(entity.ensure :entity_type "cbu" :name "Acme Capital" :as @cbu1)`)
	require.Nil(t, diag)
	require.Len(t, prog.Statements, 1)

	stmt := prog.Statements[0]
	require.Equal(t, contracts.StatementVerbCall, stmt.Kind)
	assert.Equal(t, "entity.ensure", stmt.Call.FQN())
	assert.Equal(t, "cbu1", stmt.Call.Binding)
	require.Len(t, stmt.Call.Arguments, 2)
	assert.Equal(t, "entity_type", stmt.Call.Arguments[0].Key)
	assert.Equal(t, "cbu", stmt.Call.Arguments[0].Value.StringVal)
}

func TestParse_CommentStatementPreserved(t *testing.T) {
	prog, diag := Parse("; set up the fund CBU\n(entity.ensure :entity_type \"cbu\" :name \"Acme\")")
	require.Nil(t, diag)
	require.Len(t, prog.Statements, 2)
	assert.Equal(t, contracts.StatementComment, prog.Statements[0].Kind)
	assert.Equal(t, " set up the fund CBU", prog.Statements[0].Comment)
	assert.Equal(t, contracts.StatementVerbCall, prog.Statements[1].Kind)
}

func TestParse_EntityRefAndSymbolRefArguments(t *testing.T) {
	prog, diag := Parse(`(entity.link_role :cbu cbu:"Acme Capital" :entity @person1 :role "general_partner")`)
	require.Nil(t, diag)
	require.Len(t, prog.Statements, 1)
	call := prog.Statements[0].Call

	cbuArg := call.Arguments[0].Value
	assert.Equal(t, contracts.NodeEntityRef, cbuArg.Kind)
	assert.Equal(t, "cbu", cbuArg.EntityType)
	assert.Equal(t, "Acme Capital", cbuArg.SearchValue)

	entityArg := call.Arguments[1].Value
	assert.Equal(t, contracts.NodeSymbolRef, entityArg.Kind)
	assert.Equal(t, "person1", entityArg.SymbolName)
}

func TestParse_ListAndMapAndScalarLiterals(t *testing.T) {
	prog, diag := Parse(`(ownership.add :owner @a :owned @b :pct 33.5 :tags [ "founder" 7 true ] :meta { source "seed" rank 1 })`)
	require.Nil(t, diag)
	call := prog.Statements[0].Call

	pct := call.Arguments[2].Value
	assert.Equal(t, contracts.LiteralDecimal, pct.LiteralKind)
	assert.Equal(t, "33.5", pct.DecimalVal)

	tags := call.Arguments[3].Value
	require.Equal(t, contracts.NodeList, tags.Kind)
	require.Len(t, tags.Items, 3)
	assert.Equal(t, contracts.LiteralString, tags.Items[0].LiteralKind)
	assert.Equal(t, int64(7), tags.Items[1].IntVal)
	assert.True(t, tags.Items[2].BoolVal)

	meta := call.Arguments[4].Value
	require.Equal(t, contracts.NodeMap, meta.Kind)
	require.Len(t, meta.Pairs, 2)
	assert.Equal(t, "source", meta.Pairs[0].Key)
	assert.Equal(t, "seed", meta.Pairs[0].Value.StringVal)
}

func TestParse_NestedVerbCallValue(t *testing.T) {
	prog, diag := Parse(`(case.create_workstream :case_id (case.create :cbu @cbu1 :case_type "onboarding") :workstream_type "kyc")`)
	require.Nil(t, diag)
	call := prog.Statements[0].Call
	nested := call.Arguments[0].Value
	require.Equal(t, contracts.NodeNested, nested.Kind)
	assert.Equal(t, "case.create", nested.Nested.FQN())
}

func TestParse_UUIDBoolNullLiterals(t *testing.T) {
	prog, diag := Parse(`(case.update_status :case_id 9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d :status "open" :closed_at null :escalated false)`)
	require.Nil(t, diag)
	call := prog.Statements[0].Call
	assert.Equal(t, contracts.LiteralUUID, call.Arguments[0].Value.LiteralKind)
	assert.Equal(t, contracts.LiteralNull, call.Arguments[2].Value.LiteralKind)
	assert.Equal(t, contracts.LiteralBool, call.Arguments[3].Value.LiteralKind)
	assert.False(t, call.Arguments[3].Value.BoolVal)
}

func TestParse_UnterminatedCallProducesSyntaxErrorDiagnostic(t *testing.T) {
	prog, diag := Parse(`(entity.ensure :entity_type "cbu"`)
	require.NotNil(t, diag)
	assert.Equal(t, contracts.DiagSyntaxError, diag.Code)
	assert.Equal(t, contracts.SeverityError, diag.Severity)
	assert.Empty(t, prog.Statements)
}

func TestParse_MissingOpenParenProducesSyntaxError(t *testing.T) {
	_, diag := Parse(`entity.ensure :entity_type "cbu"`)
	require.NotNil(t, diag)
	assert.Equal(t, contracts.DiagSyntaxError, diag.Code)
}
