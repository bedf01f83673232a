package contracts

import "time"

// MaterializationAudit is the non-mutating audit row recorded for every
// trading-profile projection run (§4.9).
type MaterializationAudit struct {
	AuditID         string    `json:"audit_id"`
	CBUID           string    `json:"cbu_id"`
	DocumentHash    string    `json:"document_hash"`
	SectionsProjected []string `json:"sections_projected"`
	Counts          map[string]int `json:"counts"`
	Force           bool      `json:"force"`
	CreatedAt       time.Time `json:"created_at"`
}

// OverlayMode selects what a stewardship viewport is drawn against.
type OverlayMode string

const (
	OverlayActiveOnly   OverlayMode = "ActiveOnly"
	OverlayDraftOverlay OverlayMode = "DraftOverlay"
)

// FocusState is the operator's current viewport focus (§4.10).
type FocusState struct {
	ChangesetID     string      `json:"changeset_id,omitempty"`
	OverlayMode     OverlayMode `json:"overlay_mode"`
	ObjectRefs      []string    `json:"object_refs"`
	TaxonomyFocus   string      `json:"taxonomy_focus,omitempty"`
}

// ViewportKind enumerates the panels a ShowPacket can render.
type ViewportKind string

const (
	ViewportFocus  ViewportKind = "Focus"
	ViewportObject ViewportKind = "Object"
	ViewportDiff   ViewportKind = "Diff"
	ViewportGates  ViewportKind = "Gates"
)

// ViewportSpec is one rendered panel in a ShowPacket.
type ViewportSpec struct {
	Kind    ViewportKind   `json:"kind"`
	Payload map[string]any `json:"payload"`
}

// ShowPacket is the set of viewport specs computed for a FocusState.
type ShowPacket struct {
	Viewports []ViewportSpec `json:"viewports"`
}

// ViewportManifest is the immutable, hashed record of what an operator
// was shown, persisted on capture as the evidentiary trail for governed
// changes (§4.10).
type ViewportManifest struct {
	ManifestID    string            `json:"manifest_id"`
	SessionID     string            `json:"session_id"`
	FocusState    FocusState        `json:"focus_state"`
	ViewportHashes map[string]string `json:"viewport_hashes"` // viewport kind -> sha256 hash
	CapturedAt    time.Time         `json:"captured_at"`
}
