// Package executor implements the DAG scheduler and phased sheet
// executor (§4.7): it phases a compiled op list by Kahn-style
// topological levelling, opens a single transactional boundary for the
// whole sheet, dispatches each statement to its registered handler with
// symbol substitution, and rolls back the entire sheet on the first
// runtime failure — marking every downstream statement Skipped.
//
// Modeled on the teacher's SafeExecutor: a pre-flight gating step (here,
// the TOCTOU recheck), a dispatch step (handler invocation), and a
// receipt/audit step (the per-sheet audit row).
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/envelope"
)

// Handler is a typed implementation of one {domain, verb} op family. It
// receives the op alongside its args with every `@symbol` already
// resolved against the sheet's cumulative symbol table.
type Handler func(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError)

// HandlerRegistry maps op families to their handler, assembled at
// process start (§4.8) and never mutated afterward.
type HandlerRegistry map[contracts.OpFamily]Handler

// Rechecker performs the TOCTOU recheck between planning and execution
// for one verb (§4.3, §5). A nil Rechecker skips the check entirely —
// callers that did not compute an envelope for this sheet pass nil.
type Rechecker interface {
	Recheck(verb string) *contracts.TOCTOUResult
}

// AuditSink persists the non-mutating audit row produced after a sheet
// finishes, win or lose.
type AuditSink interface {
	RecordSheetAudit(ctx context.Context, result *contracts.SheetResult) error
}

// Executor runs one sheet at a time against db, using clock for
// timestamps and deadline math (overridable for deterministic tests the
// way the teacher's gates expose WithClock).
type Executor struct {
	db        *sql.DB
	handlers  HandlerRegistry
	audit     AuditSink
	driftLog  *envelope.DriftLog
	clock     func() time.Time
	deadline  time.Duration
}

// New constructs an Executor. deadline is the default sheet deadline
// (§5 specifies 300s); pass 0 to use that default.
func New(db *sql.DB, handlers HandlerRegistry, audit AuditSink, deadline time.Duration) *Executor {
	if deadline == 0 {
		deadline = 300 * time.Second
	}
	return &Executor{
		db:       db,
		handlers: handlers,
		audit:    audit,
		driftLog: envelope.NewDriftLog(),
		clock:    time.Now,
		deadline: deadline,
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Executor) WithClock(clock func() time.Time) *Executor {
	e.clock = clock
	e.driftLog = e.driftLog.WithClock(clock)
	return e
}

// ExecuteSheet runs every op of sheet within one transaction, phase by
// phase, and returns the sheet result (§6.3). ops must be in the same
// order as sheet.Statements — ops[i].SourceStmt == i for all i.
func (e *Executor) ExecuteSheet(ctx context.Context, sheet *contracts.Sheet, ops []*contracts.Op, rechecker Rechecker) (*contracts.SheetResult, error) {
	startedAt := e.clock()
	deadlineCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	statements := make([]contracts.StatementResult, len(sheet.Statements))
	for i, stmt := range sheet.Statements {
		statements[i] = contracts.StatementResult{Index: i, Source: statementSource(stmt), Status: contracts.StatusPending}
	}
	for _, phase := range sheet.Phases {
		for _, idx := range phase.StatementIndices {
			statements[idx].DAGDepth = phase.Depth
		}
	}

	tx, err := e.db.BeginTx(deadlineCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("executor: opening sheet transaction: %w", err)
	}

	symbols := NewSymbolTable()
	overallStatus := contracts.SheetSuccess
	phasesCompleted := 0
	aborted := false

	for _, phase := range sheet.Phases {
		if aborted {
			break
		}
		for _, idx := range phase.StatementIndices {
			op := ops[idx]
			statements[idx].Status = contracts.StatusExecuting
			stepStart := e.clock()

			if err := deadlineCtx.Err(); err != nil {
				statements[idx] = failStatement(statements[idx], contracts.NewCodedError(contracts.CodeTimeout, "sheet deadline exceeded", err), stepStart, e.clock())
				overallStatus = contracts.SheetRolledBack
				aborted = true
				break
			}

			if rechecker != nil {
				verb := statements[idx].Source
				if toctou := rechecker.Recheck(verb); toctou != nil {
					switch toctou.Outcome {
					case contracts.TOCTOUDenied:
						statements[idx] = failStatement(statements[idx], contracts.NewCodedError(contracts.CodePermissionDenied, "TOCTOU recheck denied verb "+verb, nil), stepStart, e.clock())
						overallStatus = contracts.SheetRolledBack
						aborted = true
					case contracts.TOCTOUAllowedButDrifted:
						e.driftLog.Record(sheet.SheetID, toctou)
					}
				}
			}
			if aborted {
				break
			}

			resolvedArgs, subErr := symbols.Substitute(op.Args)
			if subErr != nil {
				statements[idx] = failStatement(statements[idx], contracts.NewCodedError(contracts.CodeUnresolvedSymbol, subErr.Error(), subErr), stepStart, e.clock())
				overallStatus = contracts.SheetRolledBack
				aborted = true
				break
			}

			handler, ok := e.handlers[op.Family]
			if !ok {
				statements[idx] = failStatement(statements[idx], contracts.NewCodedError(contracts.CodeUnknownVerb, fmt.Sprintf("no handler registered for op family %s", op.Family), nil), stepStart, e.clock())
				overallStatus = contracts.SheetRolledBack
				aborted = true
				break
			}

			result, handlerErr := handler(deadlineCtx, tx, op, resolvedArgs)
			finishedAt := e.clock()
			if handlerErr != nil {
				statements[idx] = failStatement(statements[idx], handlerErr, stepStart, finishedAt)
				overallStatus = contracts.SheetRolledBack
				aborted = true
				break
			}

			if result != nil && result.Kind == contracts.ResultUUID && op.Produces != "" {
				symbols.Bind(op.Produces, result.Key)
			}
			statements[idx].Status = contracts.StatusSuccess
			statements[idx].ExecutionTimeMS = finishedAt.Sub(stepStart).Milliseconds()
			if result != nil {
				statements[idx].ReturnedPK = result.Key
			}
		}
		if !aborted {
			phasesCompleted++
		}
	}

	if aborted {
		skipDownstream(statements, sheet.Phases, phasesCompleted)
		_ = tx.Rollback()
	} else if err := tx.Commit(); err != nil {
		overallStatus = contracts.SheetRolledBack
		return nil, fmt.Errorf("executor: committing sheet: %w", err)
	}

	completedAt := e.clock()
	result := &contracts.SheetResult{
		SessionID:       sheet.SessionID,
		SheetID:         sheet.SheetID,
		OverallStatus:   overallStatus,
		PhasesCompleted: phasesCompleted,
		PhasesTotal:     len(sheet.Phases),
		Statements:      statements,
		StartedAt:       startedAt.Format(time.RFC3339Nano),
		CompletedAt:     completedAt.Format(time.RFC3339Nano),
		DurationMS:      completedAt.Sub(startedAt).Milliseconds(),
	}

	if e.audit != nil {
		_ = e.audit.RecordSheetAudit(ctx, result)
	}
	return result, nil
}

func failStatement(stmt contracts.StatementResult, err *contracts.CodedError, start, end time.Time) contracts.StatementResult {
	stmt.Status = contracts.StatusFailed
	stmt.Error = err
	stmt.ExecutionTimeMS = end.Sub(start).Milliseconds()
	return stmt
}

// skipDownstream marks every statement at or beyond the first
// incomplete phase as Skipped{blocked_by} once the sheet has aborted,
// per §4.7's "abort further phases" rule.
func skipDownstream(statements []contracts.StatementResult, phases []contracts.Phase, phasesCompleted int) {
	var failedIdx int
	for i, s := range statements {
		if s.Status == contracts.StatusFailed {
			failedIdx = i
			break
		}
	}
	for depth := phasesCompleted; depth < len(phases); depth++ {
		for _, idx := range phases[depth].StatementIndices {
			if statements[idx].Status == contracts.StatusPending || statements[idx].Status == contracts.StatusExecuting {
				statements[idx].Status = contracts.StatusSkipped
				statements[idx].BlockedBy = failedIdx
			}
		}
	}
}

// statementSource renders a best-effort source string for audit
// display; verb calls show their FQN, comments their text.
func statementSource(stmt contracts.Statement) string {
	if stmt.Kind == contracts.StatementVerbCall && stmt.Call != nil {
		return stmt.Call.FQN()
	}
	return stmt.Comment
}
