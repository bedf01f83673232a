package handlers

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/finance"
)

func requireMoney(args map[string]any, key string) (finance.Money, *contracts.CodedError) {
	amount, ok := args[key+"_amount"].(int64)
	if !ok {
		return finance.Money{}, contracts.NewCodedError(contracts.CodeMissingRequiredArg, "missing required arg "+key+"_amount", nil)
	}
	currency, cerr := requireString(args, key+"_currency")
	if cerr != nil {
		return finance.Money{}, cerr
	}
	return finance.NewMoney(amount, currency), nil
}

// TransferCapital moves a monetary amount from one capital position to
// another within a single sub-transaction of the sheet's shared *sql.Tx
// (§4.8): lock the source position, reject on insufficient balance,
// upsert the target position, and write a paired transfer_out/
// transfer_in movement sharing one reference so the ledger can always
// be reconciled two rows at a time.
func TransferCapital(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	sourceID, cerr := requireString(args, "source_position_id")
	if cerr != nil {
		return nil, cerr
	}
	targetID, cerr := requireString(args, "target_position_id")
	if cerr != nil {
		return nil, cerr
	}
	amount, cerr := requireMoney(args, "transfer")
	if cerr != nil {
		return nil, cerr
	}

	var sourceBalance int64
	var currency string
	err := tx.QueryRowContext(ctx, `
		SELECT balance_minor, currency FROM capital_positions WHERE position_id = $1 FOR UPDATE
	`, sourceID).Scan(&sourceBalance, &currency)
	if err == sql.ErrNoRows {
		return nil, contracts.NewCodedError(contracts.CodeEntityNotFound, "source position not found: "+sourceID, nil)
	}
	if err != nil {
		return nil, dbErr("transfer_capital: locking source", err)
	}
	if currency != amount.Currency {
		return nil, contracts.NewCodedError(contracts.CodeTypeMismatch, "transfer currency does not match source position currency", nil)
	}
	if sourceBalance < amount.AmountMinor {
		return nil, contracts.NewCodedError(contracts.CodeBlocked, "insufficient balance on source position", nil)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE capital_positions SET balance_minor = balance_minor - $2 WHERE position_id = $1
	`, sourceID, amount.AmountMinor); err != nil {
		return nil, dbErr("transfer_capital: debiting source", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO capital_positions (position_id, balance_minor, currency)
		VALUES ($1, 0, $2)
		ON CONFLICT (position_id) DO NOTHING
	`, targetID, amount.Currency); err != nil {
		return nil, dbErr("transfer_capital: ensuring target", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE capital_positions SET balance_minor = balance_minor + $2 WHERE position_id = $1
	`, targetID, amount.AmountMinor); err != nil {
		return nil, dbErr("transfer_capital: crediting target", err)
	}

	reference := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO capital_movements (movement_id, reference, position_id, direction, amount_minor, currency)
		VALUES ($1, $2, $3, 'transfer_out', $4, $5), ($6, $2, $7, 'transfer_in', $4, $5)
	`, uuid.NewString(), reference, sourceID, amount.AmountMinor, amount.Currency, uuid.NewString(), targetID); err != nil {
		return nil, dbErr("transfer_capital: recording movements", err)
	}

	return &contracts.ExecutionResult{Kind: contracts.ResultRecord, Record: map[string]any{"reference": reference}}, nil
}

// ReconcileCapital recomputes one instrument's ownership/voting
// percentages from its actual holdings: aggregate per-holder balances,
// derive each holder's percentage of the issued total, and record the
// unallocated remainder (issued minus the sum of holdings) so drift
// between issuance and allocation is always visible rather than
// silently absorbed (§4.8).
func ReconcileCapital(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	instrumentID, cerr := requireString(args, "instrument_id")
	if cerr != nil {
		return nil, cerr
	}

	var issued int64
	if err := tx.QueryRowContext(ctx, `
		SELECT issued_units FROM instruments WHERE instrument_id = $1
	`, instrumentID).Scan(&issued); err != nil {
		if err == sql.ErrNoRows {
			return nil, contracts.NewCodedError(contracts.CodeEntityNotFound, "instrument not found: "+instrumentID, nil)
		}
		return nil, dbErr("reconcile_capital: reading instrument", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT holder_id, units FROM holdings WHERE instrument_id = $1
	`, instrumentID)
	if err != nil {
		return nil, dbErr("reconcile_capital: reading holdings", err)
	}
	defer func() { _ = rows.Close() }()

	var holdingsTotal int64
	holders := make([]map[string]any, 0)
	for rows.Next() {
		var holderID string
		var units int64
		if err := rows.Scan(&holderID, &units); err != nil {
			return nil, dbErr("reconcile_capital: scanning holdings", err)
		}
		holdingsTotal += units
		var pct float64
		if issued > 0 {
			pct = float64(units) / float64(issued) * 100
		}
		holders = append(holders, map[string]any{
			"holder_id":     holderID,
			"units":         units,
			"ownership_pct": pct,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("reconcile_capital: iterating holdings", err)
	}

	unallocated := issued - holdingsTotal
	if _, err := tx.ExecContext(ctx, `
		UPDATE instruments SET unallocated_units = $2 WHERE instrument_id = $1
	`, instrumentID, unallocated); err != nil {
		return nil, dbErr("reconcile_capital: writing unallocated", err)
	}

	return &contracts.ExecutionResult{Kind: contracts.ResultRecord, Record: map[string]any{
		"instrument_id":      instrumentID,
		"issued_units":       issued,
		"unallocated_units":  unallocated,
		"holders":            holders,
	}}, nil
}

// IssueShares increases an instrument's issued-units count and credits
// the subscriber's holding in the same statement, rather than as two
// separate ops, since an issuance with no corresponding holding would
// leave the capital ledger inconsistent mid-sheet.
func IssueShares(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	instrumentID, cerr := requireString(args, "instrument_id")
	if cerr != nil {
		return nil, cerr
	}
	holderID, cerr := requireString(args, "holder_id")
	if cerr != nil {
		return nil, cerr
	}
	units, ok := args["units"].(int64)
	if !ok || units <= 0 {
		return nil, contracts.NewCodedError(contracts.CodeTypeMismatch, "units must be a positive integer", nil)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO instruments (instrument_id, issued_units)
		VALUES ($1, $2)
		ON CONFLICT (instrument_id) DO UPDATE SET issued_units = instruments.issued_units + $2
	`, instrumentID, units); err != nil {
		return nil, dbErr("issue_shares: updating instrument", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO holdings (instrument_id, holder_id, units)
		VALUES ($1, $2, $3)
		ON CONFLICT (instrument_id, holder_id) DO UPDATE SET units = holdings.units + $3
	`, instrumentID, holderID, units); err != nil {
		return nil, dbErr("issue_shares: updating holding", err)
	}

	return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: units}, nil
}

// CancelShares is IssueShares's inverse: decrease a holder's units and
// the instrument's issued total together, rejecting a cancellation that
// would drive either below zero.
func CancelShares(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	instrumentID, cerr := requireString(args, "instrument_id")
	if cerr != nil {
		return nil, cerr
	}
	holderID, cerr := requireString(args, "holder_id")
	if cerr != nil {
		return nil, cerr
	}
	units, ok := args["units"].(int64)
	if !ok || units <= 0 {
		return nil, contracts.NewCodedError(contracts.CodeTypeMismatch, "units must be a positive integer", nil)
	}

	var currentUnits int64
	err := tx.QueryRowContext(ctx, `
		SELECT units FROM holdings WHERE instrument_id = $1 AND holder_id = $2 FOR UPDATE
	`, instrumentID, holderID).Scan(&currentUnits)
	if err == sql.ErrNoRows {
		return nil, contracts.NewCodedError(contracts.CodeEntityNotFound, "holding not found", nil)
	}
	if err != nil {
		return nil, dbErr("cancel_shares: locking holding", err)
	}
	if currentUnits < units {
		return nil, contracts.NewCodedError(contracts.CodeBlocked, "cannot cancel more units than are held", nil)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE holdings SET units = units - $3 WHERE instrument_id = $1 AND holder_id = $2
	`, instrumentID, holderID, units); err != nil {
		return nil, dbErr("cancel_shares: updating holding", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE instruments SET issued_units = issued_units - $2 WHERE instrument_id = $1
	`, instrumentID, units); err != nil {
		return nil, dbErr("cancel_shares: updating instrument", err)
	}

	return &contracts.ExecutionResult{Kind: contracts.ResultAffected, Affected: units}, nil
}
