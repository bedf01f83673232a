package handlers

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/contracts"
)

// CreateCase opens a new onboarding case against a CBU.
func CreateCase(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	caseType := optionalString(args, "case_type")

	id := uuid.NewString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cases (case_id, cbu_id, case_type, status)
		VALUES ($1, $2, $3, 'Open')
	`, id, cbuID, caseType)
	if err != nil {
		return nil, dbErr("create_case", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: id}, nil
}

// UpdateCaseStatus transitions a case's status. The SQL enforces no
// ordering itself — status-transition legality belongs to a governed
// verb contract's precondition, not this handler.
func UpdateCaseStatus(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	caseID, cerr := requireString(args, "case_id")
	if cerr != nil {
		return nil, cerr
	}
	status, cerr := requireString(args, "status")
	if cerr != nil {
		return nil, cerr
	}

	res, err := tx.ExecContext(ctx, `UPDATE cases SET status = $2 WHERE case_id = $1`, caseID, status)
	if err != nil {
		return nil, dbErr("update_case_status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, contracts.NewCodedError(contracts.CodeEntityNotFound, "case not found: "+caseID, nil)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: n}, nil
}

// CreateWorkstream opens a named sub-track of work within a case (e.g.
// KYC, legal docs, credit).
func CreateWorkstream(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	caseID, cerr := requireString(args, "case_id")
	if cerr != nil {
		return nil, cerr
	}
	name, cerr := requireString(args, "workstream_type")
	if cerr != nil {
		return nil, cerr
	}

	id := uuid.NewString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO workstreams (workstream_id, case_id, name, status)
		VALUES ($1, $2, $3, 'Open')
	`, id, caseID, name)
	if err != nil {
		return nil, dbErr("create_workstream", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: id}, nil
}

// RunScreening records a screening run (sanctions/PEP/adverse-media)
// against an entity and its raw hit count. The actual screening
// provider call is out of this handler's scope — it records the
// outcome a screening integration already produced.
func RunScreening(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	entityID, cerr := requireString(args, "entity")
	if cerr != nil {
		return nil, cerr
	}
	screenType := optionalString(args, "screening_type")
	hitCount, _ := args["hit_count"].(int64)

	id := uuid.NewString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO screening_runs (run_id, entity_id, screen_type, hit_count)
		VALUES ($1, $2, $3, $4)
	`, id, entityID, screenType, hitCount)
	if err != nil {
		return nil, dbErr("run_screening", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: id}, nil
}
