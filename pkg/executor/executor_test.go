package executor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardkit/semos/pkg/contracts"
)

func strLiteral(s string) contracts.Value {
	return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralString, StringVal: s}
}

func symbolRef(name string) contracts.Value {
	return contracts.Value{Kind: contracts.NodeSymbolRef, SymbolName: name}
}

func stmtFor(op *contracts.Op) contracts.Statement {
	return contracts.Statement{
		Kind: contracts.StatementVerbCall,
		Call: &contracts.VerbCall{Domain: "cbu", Verb: string(op.Family)},
	}
}

func TestBuildPhases_LevelsByProducerConsumer(t *testing.T) {
	ops := []*contracts.Op{
		{Family: contracts.OpEnsureEntity, SourceStmt: 0, Produces: "parent"},
		{Family: contracts.OpEnsureEntity, SourceStmt: 1, Produces: "child"},
		{Family: contracts.OpLinkRole, SourceStmt: 2, Consumes: []string{"parent", "child"}},
	}
	phases, err := BuildPhases(ops)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.ElementsMatch(t, []int{0, 1}, phases[0].StatementIndices)
	assert.Equal(t, []int{2}, phases[1].StatementIndices)
}

func TestBuildPhases_DetectsCycle(t *testing.T) {
	ops := []*contracts.Op{
		{Family: contracts.OpEnsureEntity, SourceStmt: 0, Produces: "a", Consumes: []string{"b"}},
		{Family: contracts.OpEnsureEntity, SourceStmt: 1, Produces: "b", Consumes: []string{"a"}},
	}
	_, err := BuildPhases(ops)
	assert.Error(t, err)
}

func TestSymbolTable_SubstitutesBoundReference(t *testing.T) {
	st := NewSymbolTable()
	st.Bind("parent", "uuid-123")

	args := map[string]contracts.Value{"entity_id": symbolRef("parent")}
	resolved, err := st.Substitute(args)
	require.NoError(t, err)
	assert.Equal(t, "uuid-123", resolved["entity_id"])
}

func TestSymbolTable_UnresolvedSymbolErrors(t *testing.T) {
	st := NewSymbolTable()
	_, err := st.Substitute(map[string]contracts.Value{"x": symbolRef("missing")})
	assert.Error(t, err)
}

func TestExecuteSheet_CommitsOnAllSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	ensure := &contracts.Op{Family: contracts.OpEnsureEntity, SourceStmt: 0, Produces: "cbu", Args: map[string]contracts.Value{"name": strLiteral("Acme")}}
	link := &contracts.Op{Family: contracts.OpLinkRole, SourceStmt: 1, Consumes: []string{"cbu"}, Args: map[string]contracts.Value{"entity_id": symbolRef("cbu")}}
	ops := []*contracts.Op{ensure, link}
	phases, err := BuildPhases(ops)
	require.NoError(t, err)

	sheet := &contracts.Sheet{
		SessionID:  "sess-1",
		SheetID:    "sheet-1",
		Statements: []contracts.Statement{stmtFor(ensure), stmtFor(link)},
		Phases:     phases,
	}

	var sawEntityID any
	handlers := HandlerRegistry{
		contracts.OpEnsureEntity: func(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
			return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: "entity-uuid"}, nil
		},
		contracts.OpLinkRole: func(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
			sawEntityID = args["entity_id"]
			return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: 1}, nil
		},
	}

	exec := New(db, handlers, nil, 0).WithClock(func() time.Time { return time.Unix(0, 0) })
	result, err := exec.ExecuteSheet(context.Background(), sheet, ops, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.SheetSuccess, result.OverallStatus)
	assert.Equal(t, contracts.StatusSuccess, result.Statements[0].Status)
	assert.Equal(t, contracts.StatusSuccess, result.Statements[1].Status)
	assert.Equal(t, "entity-uuid", sawEntityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSheet_RollsBackAndSkipsDownstreamOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	failing := &contracts.Op{Family: contracts.OpEnsureEntity, SourceStmt: 0, Produces: "cbu"}
	downstream := &contracts.Op{Family: contracts.OpLinkRole, SourceStmt: 1, Consumes: []string{"cbu"}}
	ops := []*contracts.Op{failing, downstream}
	phases, err := BuildPhases(ops)
	require.NoError(t, err)

	sheet := &contracts.Sheet{
		SessionID:  "sess-2",
		SheetID:    "sheet-2",
		Statements: []contracts.Statement{stmtFor(failing), stmtFor(downstream)},
		Phases:     phases,
	}

	downstreamCalled := false
	handlers := HandlerRegistry{
		contracts.OpEnsureEntity: func(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
			return nil, contracts.NewCodedError(contracts.CodeDbConstraint, "duplicate entity", nil)
		},
		contracts.OpLinkRole: func(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
			downstreamCalled = true
			return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: 1}, nil
		},
	}

	exec := New(db, handlers, nil, 0)
	result, err := exec.ExecuteSheet(context.Background(), sheet, ops, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.SheetRolledBack, result.OverallStatus)
	assert.Equal(t, contracts.StatusFailed, result.Statements[0].Status)
	assert.Equal(t, contracts.StatusSkipped, result.Statements[1].Status)
	assert.Equal(t, 0, result.Statements[1].BlockedBy)
	assert.False(t, downstreamCalled, "downstream handler must not run after an upstream failure in the same sheet")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSheet_TOCTOUDenyAbortsBeforeDispatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	op := &contracts.Op{Family: contracts.OpRunScreening, SourceStmt: 0}
	ops := []*contracts.Op{op}
	phases, err := BuildPhases(ops)
	require.NoError(t, err)

	sheet := &contracts.Sheet{
		SessionID:  "sess-3",
		SheetID:    "sheet-3",
		Statements: []contracts.Statement{stmtFor(op)},
		Phases:     phases,
	}

	called := false
	handlers := HandlerRegistry{
		contracts.OpRunScreening: func(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
			called = true
			return &contracts.ExecutionResult{Kind: contracts.ResultVoid}, nil
		},
	}

	exec := New(db, handlers, nil, 0)
	result, err := exec.ExecuteSheet(context.Background(), sheet, ops, denyingRechecker{})
	require.NoError(t, err)
	assert.Equal(t, contracts.SheetRolledBack, result.OverallStatus)
	assert.False(t, called, "a denied TOCTOU recheck must block dispatch entirely")
	assert.NoError(t, mock.ExpectationsWereMet())
}

type denyingRechecker struct{}

func (denyingRechecker) Recheck(verb string) *contracts.TOCTOUResult {
	return &contracts.TOCTOUResult{Outcome: contracts.TOCTOUDenied, Verb: verb}
}
