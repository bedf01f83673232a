package handlers

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/materializer"
)

// AddUniverse registers an investment universe (a named, scoped set of
// eligible instruments) under a CBU.
func AddUniverse(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	name, cerr := requireString(args, "name")
	if cerr != nil {
		return nil, cerr
	}

	id := uuid.NewString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO universes (universe_id, cbu_id, name)
		VALUES ($1, $2, $3)
	`, id, cbuID, name)
	if err != nil {
		return nil, dbErr("add_universe", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: id}, nil
}

// CreateSSI records a standing settlement instruction for a CBU in one
// currency/market combination. Uniqueness of (cbu_id, currency, market)
// is enforced at the schema level so a re-run sheet upserts rather than
// duplicating instructions.
func CreateSSI(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	currency := optionalString(args, "currency")
	market := optionalString(args, "market")
	custodianBIC := optionalString(args, "custodian_bic")

	id := uuid.NewString()
	var returned string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO ssis (ssi_id, cbu_id, currency, market, custodian_bic)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cbu_id, currency, market) DO UPDATE SET custodian_bic = EXCLUDED.custodian_bic
		RETURNING ssi_id
	`, id, cbuID, currency, market, custodianBIC).Scan(&returned)
	if err != nil {
		return nil, dbErr("create_ssi", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: returned}, nil
}

// AddBookingRule attaches a booking rule (which legal entity books which
// product type under which ISDA/CSA) to a CBU's trading profile.
func AddBookingRule(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	productType := optionalString(args, "product_type")
	bookingEntity := optionalString(args, "booking_entity")

	id := uuid.NewString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO booking_rules (rule_id, cbu_id, product_type, booking_entity)
		VALUES ($1, $2, $3, $4)
	`, id, cbuID, productType, bookingEntity)
	if err != nil {
		return nil, dbErr("add_booking_rule", err)
	}
	return &contracts.ExecutionResult{Kind: contracts.ResultUUID, Key: id}, nil
}

// MaterializeTradingProfile projects an authored document onto a CBU's
// SSIs/ISDAs/CSAs/booking rules/universes (§4.9), returning the audit
// row as the statement's result record.
func MaterializeTradingProfile(ctx context.Context, tx *sql.Tx, op *contracts.Op, args map[string]any) (*contracts.ExecutionResult, *contracts.CodedError) {
	cbuID, cerr := requireString(args, "cbu")
	if cerr != nil {
		return nil, cerr
	}
	document, ok := args["document"].(map[string]any)
	if !ok {
		return nil, contracts.NewCodedError(contracts.CodeTypeMismatch, "arg \"document\" must be a map", nil)
	}
	force, _ := args["force"].(bool)

	audit, cerr := materializer.Materialize(ctx, tx, cbuID, document, force)
	if cerr != nil {
		return nil, cerr
	}

	return &contracts.ExecutionResult{Kind: contracts.ResultRecord, Record: map[string]any{
		"audit_id":           audit.AuditID,
		"document_hash":      audit.DocumentHash,
		"sections_projected": audit.SectionsProjected,
		"counts":             audit.Counts,
		"force":              audit.Force,
	}}, nil
}
