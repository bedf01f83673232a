package envelope

import (
	"fmt"
	"sync"
	"time"

	"github.com/onboardkit/semos/pkg/contracts"
)

// DriftWarning is one recorded "AllowedButDrifted" governance signal: the
// TOCTOU recheck found a different envelope than the one the plan was
// built against, but the selected verb was still in the fresh allowed
// set, so execution proceeded with a logged warning instead of an abort.
type DriftWarning struct {
	WarningID      string    `json:"warning_id"`
	SheetID        string    `json:"sheet_id"`
	Verb           string    `json:"verb"`
	PriorFingerprint string  `json:"prior_fingerprint"`
	NewFingerprint string    `json:"new_fingerprint"`
	DetectedAt     time.Time `json:"detected_at"`
}

// DriftLog accumulates the governance warnings a TOCTOU recheck produces
// across a run; ForSheet returns one sheet's warnings. The executor's
// SheetResult and its per-sheet audit row (§4.7) do not include them.
type DriftLog struct {
	mu       sync.Mutex
	warnings []DriftWarning
	seq      int64
	clock    func() time.Time
}

// NewDriftLog constructs an empty drift log using the wall clock.
func NewDriftLog() *DriftLog {
	return &DriftLog{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (d *DriftLog) WithClock(clock func() time.Time) *DriftLog {
	d.clock = clock
	return d
}

// Record appends a drift warning for one sheet/verb pair.
func (d *DriftLog) Record(sheetID string, result *contracts.TOCTOUResult) DriftWarning {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	w := DriftWarning{
		WarningID:      fmt.Sprintf("drift-%d", d.seq),
		SheetID:        sheetID,
		Verb:           result.Verb,
		NewFingerprint: result.NewFingerprint,
		DetectedAt:     d.clock(),
	}
	d.warnings = append(d.warnings, w)
	return w
}

// Warnings returns a copy of every recorded drift warning.
func (d *DriftLog) Warnings() []DriftWarning {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DriftWarning, len(d.warnings))
	copy(out, d.warnings)
	return out
}

// ForSheet filters recorded warnings down to one sheet.
func (d *DriftLog) ForSheet(sheetID string) []DriftWarning {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []DriftWarning
	for _, w := range d.warnings {
		if w.SheetID == sheetID {
			out = append(out, w)
		}
	}
	return out
}
