// Package handlers implements the op-family handlers the executor
// dispatches to (§4.8): one Go function per primitive in the op
// catalogue (§3.6), each satisfying executor.Handler. Handlers read
// their args from the already-symbol-substituted map the executor
// passes in, run their SQL against the sheet's shared *sql.Tx, and
// return one of the ExecutionResult union variants.
package handlers

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/executor"
)

// Register assembles the full HandlerRegistry for the 19 op families
// (§3.6). Call once at process start and hand the result to
// executor.New — the registry is immutable after construction (§5).
func Register() executor.HandlerRegistry {
	return executor.HandlerRegistry{
		contracts.OpEnsureEntity:     EnsureEntity,
		contracts.OpLinkRole:         LinkRole,
		contracts.OpUnlinkRole:       UnlinkRole,
		contracts.OpAddOwnership:     AddOwnership,
		contracts.OpRegisterUBO:      RegisterUBO,
		contracts.OpCreateCase:       CreateCase,
		contracts.OpUpdateCaseStatus: UpdateCaseStatus,
		contracts.OpCreateWorkstream: CreateWorkstream,
		contracts.OpRunScreening:     RunScreening,
		contracts.OpAddUniverse:      AddUniverse,
		contracts.OpCreateSSI:        CreateSSI,
		contracts.OpAddBookingRule:   AddBookingRule,
		contracts.OpUpsertDoc:        UpsertDoc,
		contracts.OpAttachEvidence:   AttachEvidence,
		contracts.OpMaterialize:      MaterializeTradingProfile,
		contracts.OpTransferCapital:  TransferCapital,
		contracts.OpReconcileCapital: ReconcileCapital,
		contracts.OpIssueShares:      IssueShares,
		contracts.OpCancelShares:     CancelShares,
	}
}

func requireString(args map[string]any, key string) (string, *contracts.CodedError) {
	v, ok := args[key]
	if !ok {
		return "", contracts.NewCodedError(contracts.CodeMissingRequiredArg, fmt.Sprintf("missing required arg %q", key), nil)
	}
	s, ok := v.(string)
	if !ok {
		return "", contracts.NewCodedError(contracts.CodeTypeMismatch, fmt.Sprintf("arg %q must be a string", key), nil)
	}
	return s, nil
}

func optionalString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func dbErr(op string, err error) *contracts.CodedError {
	return contracts.NewCodedError(contracts.CodeDbConstraint, fmt.Sprintf("%s: %v", op, err), err)
}

// EnsureEntity idempotently creates or finds an entity by its natural
// key (legal name + jurisdiction), returning its id either way — the
// same "insert or find" idiom the teacher's stores use for idempotent
// retries, via ON CONFLICT ... DO NOTHING RETURNING + a fallback read.
func EnsureEntity(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	name, cerr := requireString(args, "name")
	if cerr != nil {
		return nil, cerr
	}
	entityType := optionalString(args, "entity_type")
	jurisdiction := optionalString(args, "jurisdiction")

	id := uuid.NewString()
	var returned string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO entities (entity_id, name, entity_type, jurisdiction)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, jurisdiction) DO NOTHING
		RETURNING entity_id
	`, id, name, entityType, jurisdiction).Scan(&returned)

	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `
			SELECT entity_id FROM entities WHERE name = $1 AND jurisdiction = $2
		`, name, jurisdiction).Scan(&returned)
	}
	if err != nil {
		return nil, dbErr("ensure_entity", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: returned}, nil
}

// LinkRole idempotently attaches a role to an entity within a CBU,
// keyed on (cbu_id, entity_id, role) so re-running a sheet never
// duplicates the link.
func LinkRole(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	entityID, cerr := requireString(args, "entity")
	if cerr != nil {
		return nil, cerr
	}
	role, cerr := requireString(args, "role")
	if cerr != nil {
		return nil, cerr
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO role_links (cbu_id, entity_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (cbu_id, entity_id, role) DO NOTHING
	`, cbuID, entityID, role)
	if err != nil {
		return nil, dbErr("link_role", err)
	}
	n, _ := res.RowsAffected()
	return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: n}, nil
}

// UnlinkRole removes a previously linked role; affecting zero rows is
// not an error since the link may already have been removed by an
// earlier, identical sheet run.
func UnlinkRole(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	entityID, cerr := requireString(args, "entity")
	if cerr != nil {
		return nil, cerr
	}
	role, cerr := requireString(args, "role")
	if cerr != nil {
		return nil, cerr
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM role_links WHERE cbu_id = $1 AND entity_id = $2 AND role = $3
	`, cbuID, entityID, role)
	if err != nil {
		return nil, dbErr("unlink_role", err)
	}
	n, _ := res.RowsAffected()
	return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: n}, nil
}
