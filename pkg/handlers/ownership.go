package handlers

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/onboardkit/semos/pkg/contracts"
)

// AddOwnership records one edge of an ownership graph (owner -> owned,
// with a percentage). Ownership percentages are author-supplied here;
// ReconcileCapital is what keeps the derived totals consistent with
// actual holdings.
func AddOwnership(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	ownerID, cerr := requireString(args, "owner")
	if cerr != nil {
		return nil, cerr
	}
	ownedID, cerr := requireString(args, "owned")
	if cerr != nil {
		return nil, cerr
	}
	pctStr, cerr := requireString(args, "pct")
	if cerr != nil {
		return nil, cerr
	}
	pct, err := strconv.ParseFloat(pctStr, 64)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeTypeMismatch, "pct must be a decimal", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ownership_edges (owner_id, owned_id, ownership_pct)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, owned_id) DO UPDATE SET ownership_pct = EXCLUDED.ownership_pct
	`, ownerID, ownedID, pct)
	if err != nil {
		return nil, dbErr("add_ownership", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: 1}, nil
}

// RegisterUBO records a natural person as an ultimate beneficial owner
// of an entity, with the cumulative ownership percentage the caller
// already computed (typically by walking the ownership chain below and
// multiplying edge weights along the path).
func RegisterUBO(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	entityID, cerr := requireString(args, "entity")
	if cerr != nil {
		return nil, cerr
	}
	personID, cerr := requireString(args, "person")
	if cerr != nil {
		return nil, cerr
	}
	pctStr, cerr := requireString(args, "pct")
	if cerr != nil {
		return nil, cerr
	}
	cumulativePct, err := strconv.ParseFloat(pctStr, 64)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeTypeMismatch, "pct must be a decimal", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ubo_registrations (entity_id, person_id, cumulative_pct)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, person_id) DO UPDATE SET cumulative_pct = EXCLUDED.cumulative_pct
	`, entityID, personID, cumulativePct)
	if err != nil {
		return nil, dbErr("register_ubo", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: 1}, nil
}

// ownershipEdge is one row of the ownership_edges table, used by the
// recursive chain walk below.
type ownershipEdge struct {
	OwnerID      string
	OwnedID      string
	OwnershipPct float64
}

// minOwnershipPct is the prune threshold below which a chain branch is
// dropped rather than recorded as a UBO candidate (§4.8).
const minOwnershipPct = 0.05

// maxChainDepth bounds the recursive walk so a malformed graph cannot
// recurse unboundedly even before cycle detection kicks in.
const maxChainDepth = 10

// WalkOwnershipChain recursively traverses the ownership graph upward
// from rootEntityID, multiplying edge weights cumulatively along each
// path, stopping a branch when the cumulative product falls below
// minOwnershipPct, and refusing to revisit any entity already on the
// current path (cycle prevention via path array, §4.8).
func WalkOwnershipChain(ctx context.Context, tx *sql.Tx, rootEntityID string) ([]UBOCandidate, error) {
	var results []UBOCandidate
	err := walk(ctx, tx, rootEntityID, 1.0, []string{rootEntityID}, &results)
	return results, err
}

// UBOCandidate is one natural-person owner found at the end of a chain,
// with the cumulative percentage of rootEntityID they indirectly own.
type UBOCandidate struct {
	PersonID      string
	CumulativePct float64
	Path          []string
}

func walk(ctx context.Context, tx *sql.Tx, entityID string, cumulative float64, path []string, results *[]UBOCandidate) error {
	if len(path) > maxChainDepth {
		return nil
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT owner_id, ownership_pct FROM ownership_edges WHERE owned_id = $1
	`, entityID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	var edges []ownershipEdge
	for rows.Next() {
		var e ownershipEdge
		e.OwnedID = entityID
		if err := rows.Scan(&e.OwnerID, &e.OwnershipPct); err != nil {
			return err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var isPerson bool
	if err := tx.QueryRowContext(ctx, `SELECT is_natural_person FROM entities WHERE entity_id = $1`, entityID).Scan(&isPerson); err != nil && err != sql.ErrNoRows {
		return err
	}
	if isPerson && len(path) > 1 {
		*results = append(*results, UBOCandidate{PersonID: entityID, CumulativePct: cumulative, Path: append([]string{}, path...)})
		return nil
	}

	for _, e := range edges {
		alreadyVisited := false
		for _, visited := range path {
			if visited == e.OwnerID {
				alreadyVisited = true
				break
			}
		}
		if alreadyVisited {
			continue // cycle: this owner is already on the current path
		}
		next := cumulative * e.OwnershipPct
		if next < minOwnershipPct {
			continue
		}
		if err := walk(ctx, tx, e.OwnerID, next, append(path, e.OwnerID), results); err != nil {
			return err
		}
	}
	return nil
}
