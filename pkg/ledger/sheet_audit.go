package ledger

import (
	"context"
	"encoding/json"

	"github.com/onboardkit/semos/pkg/contracts"
)

// SheetAuditLedger persists contracts.SheetResult rows to the run ledger
// (§4.7's "persist a non-mutating audit row"), hash-chained the same
// way every other typed ledger entry is.
type SheetAuditLedger struct {
	ledger *TypedLedger
}

// NewSheetAuditLedger wraps a run-type typed ledger as an audit sink.
func NewSheetAuditLedger(ledger *TypedLedger) *SheetAuditLedger {
	return &SheetAuditLedger{ledger: ledger}
}

// RecordSheetAudit implements executor.AuditSink.
func (s *SheetAuditLedger) RecordSheetAudit(ctx context.Context, result *contracts.SheetResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	s.ledger.Append("sheet_execution", string(payload))
	return nil
}
