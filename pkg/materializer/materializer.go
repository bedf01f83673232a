// Package materializer implements the trading-profile materialiser
// (§4.9): idempotent projection of an authored document into the
// operational SSI/ISDA/CSA/booking-rule/universe tables, with orphan
// sweep in foreign-key cascade order and an audit row per run. It runs
// inside the caller's *sql.Tx, the same pattern the teacher's
// artifactStore.Store follows when invoked from Executor.Execute.
package materializer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/canonicalize"
	"github.com/onboardkit/semos/pkg/contracts"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS isdas (
	isda_id                 TEXT PRIMARY KEY,
	cbu_id                  TEXT NOT NULL,
	counterparty_entity_id  TEXT NOT NULL,
	isda_date               TEXT NOT NULL,
	UNIQUE (cbu_id, counterparty_entity_id, isda_date)
);

CREATE TABLE IF NOT EXISTS csas (
	csa_id    TEXT PRIMARY KEY,
	isda_id   TEXT NOT NULL UNIQUE,
	threshold TEXT,
	currency  TEXT
);

CREATE TABLE IF NOT EXISTS materialization_audit (
	audit_id           TEXT PRIMARY KEY,
	cbu_id             TEXT NOT NULL,
	document_hash      TEXT NOT NULL,
	sections_projected TEXT NOT NULL,
	counts             TEXT NOT NULL,
	force              BOOLEAN NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_materialization_audit_cbu ON materialization_audit (cbu_id, created_at DESC);
`

// Init creates the materialiser's backing tables. ssis/booking_rules/
// universes are owned by pkg/handlers' custody ops and already exist by
// the time this runs.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, pgSchema)
	return err
}

// Materialize projects document onto cbuID's operational tables and
// returns the audit row recorded for the run. It must run inside tx so
// the projection and its audit row commit atomically with the
// enclosing sheet statement.
func Materialize(ctx context.Context, tx *sql.Tx, cbuID string, document map[string]any, force bool) (*contracts.MaterializationAudit, *contracts.CodedError) {
	hash, err := canonicalize.CanonicalHash(document)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeInternalError, "hashing document", err)
	}

	var lastHash string
	err = tx.QueryRowContext(ctx, `
		SELECT document_hash FROM materialization_audit
		WHERE cbu_id = $1 ORDER BY created_at DESC LIMIT 1
	`, cbuID).Scan(&lastHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, contracts.NewCodedError(contracts.CodeDbConnection, "reading prior audit row", err)
	}

	var sectionsProjected []string
	if force || lastHash != hash {
		sectionsProjected, err = project(ctx, tx, cbuID, document)
		if err != nil {
			return nil, contracts.NewCodedError(contracts.CodeDbConstraint, "projecting trading profile", err)
		}
	}

	counts, err := currentCounts(ctx, tx, cbuID)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeDbConnection, "counting operational rows", err)
	}

	audit := &contracts.MaterializationAudit{
		AuditID:           uuid.NewString(),
		CBUID:             cbuID,
		DocumentHash:      hash,
		SectionsProjected: sectionsProjected,
		Counts:            counts,
		Force:             force,
		CreatedAt:         time.Now().UTC(),
	}

	sectionsJSON, err := json.Marshal(audit.SectionsProjected)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeInternalError, "encoding sections_projected", err)
	}
	countsJSON, err := json.Marshal(audit.Counts)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeInternalError, "encoding counts", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO materialization_audit (audit_id, cbu_id, document_hash, sections_projected, counts, force, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, audit.AuditID, audit.CBUID, audit.DocumentHash, string(sectionsJSON), string(countsJSON), audit.Force, audit.CreatedAt)
	if err != nil {
		return nil, contracts.NewCodedError(contracts.CodeDbConstraint, "writing audit row", err)
	}

	return audit, nil
}

// project performs the full upsert + orphan-sweep pass over every
// section present in document and returns the sections it touched.
func project(ctx context.Context, tx *sql.Tx, cbuID string, document map[string]any) ([]string, error) {
	var sections []string

	if raw, ok := document["universes"]; ok {
		if err := projectUniverses(ctx, tx, cbuID, asSlice(raw)); err != nil {
			return nil, fmt.Errorf("universes: %w", err)
		}
		sections = append(sections, "universes")
	}

	// Booking rules route to settlement instructions, so their orphans
	// must be swept before SSIs': upsert both sections first, then sweep
	// booking_rules before ssis.
	var desiredSSIs, desiredBookingRules map[string]bool
	if raw, ok := document["ssis"]; ok {
		desired, err := upsertSSIs(ctx, tx, cbuID, asSlice(raw))
		if err != nil {
			return nil, fmt.Errorf("ssis: %w", err)
		}
		desiredSSIs = desired
		sections = append(sections, "ssis")
	}
	if raw, ok := document["booking_rules"]; ok {
		desired, err := upsertBookingRules(ctx, tx, cbuID, asSlice(raw))
		if err != nil {
			return nil, fmt.Errorf("booking_rules: %w", err)
		}
		desiredBookingRules = desired
		sections = append(sections, "booking_rules")
	}
	if desiredBookingRules != nil {
		if err := sweepOrphansByRows(ctx, tx, "booking_rules", cbuID, "rule_id", "product_type", "booking_entity", desiredBookingRules); err != nil {
			return nil, fmt.Errorf("booking_rules: %w", err)
		}
	}
	if desiredSSIs != nil {
		if err := sweepOrphansComposite(ctx, tx, "ssis", cbuID, desiredSSIs, func(currency, market string) string {
			return currency + "|" + market
		}); err != nil {
			return nil, fmt.Errorf("ssis: %w", err)
		}
	}

	// CSAs depend on ISDAs, so their orphans must be swept before ISDAs'.
	if raw, ok := document["isdas"]; ok {
		if err := projectISDAsAndCSAs(ctx, tx, cbuID, asSlice(raw)); err != nil {
			return nil, fmt.Errorf("isdas: %w", err)
		}
		sections = append(sections, "isdas")
	}

	sort.Strings(sections)
	return sections, nil
}

func asSlice(raw any) []any {
	if s, ok := raw.([]any); ok {
		return s
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func mapField(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	nested, ok := v.(map[string]any)
	return nested, ok
}

// projectUniverses upserts the desired universe set by name and deletes
// any operational row whose name is no longer present in document.
func projectUniverses(ctx context.Context, tx *sql.Tx, cbuID string, items []any) error {
	desired := make(map[string]bool, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(m, "name")
		if name == "" {
			continue
		}
		desired[name] = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO universes (universe_id, cbu_id, name)
			SELECT $1, $2, $3
			WHERE NOT EXISTS (SELECT 1 FROM universes WHERE cbu_id = $2 AND name = $3)
		`, uuid.NewString(), cbuID, name); err != nil {
			return err
		}
	}
	return sweepOrphans(ctx, tx, "universes", "name", cbuID, desired)
}

// upsertSSIs upserts the desired (currency, market) set and returns it
// as a natural-key set so the caller can sweep orphans after
// booking_rules, preserving the "booking rules before SSIs" cascade
// order on delete.
func upsertSSIs(ctx context.Context, tx *sql.Tx, cbuID string, items []any) (map[string]bool, error) {
	desired := make(map[string]bool, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		currency, market := stringField(m, "currency"), stringField(m, "market")
		if currency == "" || market == "" {
			continue
		}
		desired[currency+"|"+market] = true
		custodianBIC := stringField(m, "custodian_bic")

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ssis (ssi_id, cbu_id, currency, market, custodian_bic)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (cbu_id, currency, market) DO UPDATE SET custodian_bic = EXCLUDED.custodian_bic
		`, uuid.NewString(), cbuID, currency, market, custodianBIC); err != nil {
			return nil, err
		}
	}
	return desired, nil
}

func upsertBookingRules(ctx context.Context, tx *sql.Tx, cbuID string, items []any) (map[string]bool, error) {
	desired := make(map[string]bool, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		productType, bookingEntity := stringField(m, "product_type"), stringField(m, "booking_entity")
		if productType == "" || bookingEntity == "" {
			continue
		}
		desired[productType+"|"+bookingEntity] = true

		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM booking_rules WHERE cbu_id = $1 AND product_type = $2 AND booking_entity = $3)
		`, cbuID, productType, bookingEntity).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO booking_rules (rule_id, cbu_id, product_type, booking_entity)
			VALUES ($1, $2, $3, $4)
		`, uuid.NewString(), cbuID, productType, bookingEntity); err != nil {
			return nil, err
		}
	}
	return desired, nil
}

// projectISDAsAndCSAs upserts each ISDA and, when present, its single
// CSA — enforcing at most one CSA per ISDA regardless of re-run count —
// then sweeps orphaned CSAs before orphaned ISDAs.
func projectISDAsAndCSAs(ctx context.Context, tx *sql.Tx, cbuID string, items []any) error {
	desiredISDAs := make(map[string]bool, len(items))
	keptISDAIDs := make(map[string]bool, len(items))

	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		counterparty, isdaDate := stringField(m, "counterparty_entity_id"), stringField(m, "isda_date")
		if counterparty == "" || isdaDate == "" {
			continue
		}
		naturalKey := counterparty + "|" + isdaDate
		desiredISDAs[naturalKey] = true

		id := uuid.NewString()
		var isdaID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO isdas (isda_id, cbu_id, counterparty_entity_id, isda_date)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cbu_id, counterparty_entity_id, isda_date) DO UPDATE SET isda_date = EXCLUDED.isda_date
			RETURNING isda_id
		`, id, cbuID, counterparty, isdaDate).Scan(&isdaID)
		if err != nil {
			return err
		}
		keptISDAIDs[isdaID] = true

		csa, hasCSA := mapField(m, "csa")
		if !hasCSA {
			if _, err := tx.ExecContext(ctx, `DELETE FROM csas WHERE isda_id = $1`, isdaID); err != nil {
				return err
			}
			continue
		}
		threshold, currency := stringField(csa, "threshold"), stringField(csa, "currency")
		// CSA uniqueness: exactly one row per ISDA, so upsert on the
		// isda_id unique constraint rather than allocating a new id
		// each run.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO csas (csa_id, isda_id, threshold, currency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (isda_id) DO UPDATE SET threshold = EXCLUDED.threshold, currency = EXCLUDED.currency
		`, uuid.NewString(), isdaID, threshold, currency); err != nil {
			return err
		}
	}

	// Sweep CSAs belonging to ISDAs that are themselves about to be
	// removed, then the ISDAs.
	rows, err := tx.QueryContext(ctx, `SELECT isda_id FROM isdas WHERE cbu_id = $1`, cbuID)
	if err != nil {
		return err
	}
	var orphanISDAIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		if !keptISDAIDs[id] {
			orphanISDAIDs = append(orphanISDAIDs, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for _, id := range orphanISDAIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM csas WHERE isda_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM isdas WHERE isda_id = $1`, id); err != nil {
			return err
		}
	}
	return nil
}

// sweepOrphans deletes rows from table whose value in keyColumn is not
// present in desired, scoped to cbuID.
func sweepOrphans(ctx context.Context, tx *sql.Tx, table, keyColumn, cbuID string, desired map[string]bool) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE cbu_id = $1`, keyColumn, table), cbuID)
	if err != nil {
		return err
	}
	var orphans []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return err
		}
		if !desired[key] {
			orphans = append(orphans, key)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for _, key := range orphans {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE cbu_id = $1 AND %s = $2`, table, keyColumn), cbuID, key); err != nil {
			return err
		}
	}
	return nil
}

func sweepOrphansComposite(ctx context.Context, tx *sql.Tx, table, cbuID string, desired map[string]bool, keyFn func(a, b string) string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT currency, market FROM %s WHERE cbu_id = $1`, table), cbuID)
	if err != nil {
		return err
	}
	type pair struct{ a, b string }
	var orphans []pair
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			_ = rows.Close()
			return err
		}
		if !desired[keyFn(a, b)] {
			orphans = append(orphans, pair{a, b})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for _, o := range orphans {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE cbu_id = $1 AND currency = $2 AND market = $3`, table), cbuID, o.a, o.b); err != nil {
			return err
		}
	}
	return nil
}

func sweepOrphansByRows(ctx context.Context, tx *sql.Tx, table, cbuID, idColumn, colA, colB string, desired map[string]bool) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT %s, %s, %s FROM %s WHERE cbu_id = $1`, idColumn, colA, colB, table), cbuID)
	if err != nil {
		return err
	}
	var orphanIDs []string
	for rows.Next() {
		var id, a, b string
		if err := rows.Scan(&id, &a, &b); err != nil {
			_ = rows.Close()
			return err
		}
		if !desired[a+"|"+b] {
			orphanIDs = append(orphanIDs, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for _, id := range orphanIDs {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, idColumn), id); err != nil {
			return err
		}
	}
	return nil
}

func currentCounts(ctx context.Context, tx *sql.Tx, cbuID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"universes", "ssis", "booking_rules", "isdas"} {
		var n int
		if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE cbu_id = $1`, table), cbuID).Scan(&n); err != nil {
			return nil, err
		}
		counts[table] = n
	}

	var n int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM csas WHERE isda_id IN (SELECT isda_id FROM isdas WHERE cbu_id = $1)
	`, cbuID).Scan(&n); err != nil {
		return nil, err
	}
	counts["csas"] = n
	return counts, nil
}
