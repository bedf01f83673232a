// Package showloop implements the stewardship show-loop (§4.10): a
// FocusState renders into a ShowPacket of viewport panels, and capturing
// that packet produces an immutable, hashed ViewportManifest — the
// evidentiary record of what an operator was shown before approving a
// governed change.
package showloop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onboardkit/semos/pkg/canonicalize"
	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/ledger"
)

// Renderer produces one viewport's payload for a given focus state.
// Each of the four panel kinds (Focus, Object, Diff, Gates) has its own
// Renderer registered under that ViewportKind.
type Renderer func(ctx context.Context, focus contracts.FocusState) (map[string]any, error)

// RendererRegistry maps viewport kinds to their renderer.
type RendererRegistry map[contracts.ViewportKind]Renderer

// defaultOrder is the fixed panel order a ShowPacket always renders in,
// regardless of registration order, so manifests are comparable.
var defaultOrder = []contracts.ViewportKind{
	contracts.ViewportFocus,
	contracts.ViewportObject,
	contracts.ViewportDiff,
	contracts.ViewportGates,
}

// Loop drives the render -> capture cycle for one stewardship session.
type Loop struct {
	renderers RendererRegistry
	manifests *ledger.TypedLedger
	clock     func() time.Time
}

// New constructs a Loop. manifests should be a VIEWPORT-typed ledger so
// captured manifests are hash-chained alongside every other ledger.
func New(renderers RendererRegistry, manifests *ledger.TypedLedger) *Loop {
	return &Loop{renderers: renderers, manifests: manifests, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *Loop) WithClock(clock func() time.Time) *Loop {
	l.clock = clock
	return l
}

// Render computes a ShowPacket for the given focus, running only the
// renderers registered for panels named in defaultOrder. A missing
// renderer for a kind simply omits that panel rather than failing the
// whole packet — not every session needs every panel (e.g. Diff has
// nothing to show outside DraftOverlay mode).
func (l *Loop) Render(ctx context.Context, focus contracts.FocusState) (*contracts.ShowPacket, error) {
	packet := &contracts.ShowPacket{}
	for _, kind := range defaultOrder {
		renderer, ok := l.renderers[kind]
		if !ok {
			continue
		}
		payload, err := renderer(ctx, focus)
		if err != nil {
			return nil, fmt.Errorf("showloop: rendering %s viewport: %w", kind, err)
		}
		packet.Viewports = append(packet.Viewports, contracts.ViewportSpec{Kind: kind, Payload: payload})
	}
	return packet, nil
}

// Capture hashes every viewport in packet under RFC 8785 canonical JSON
// and records the resulting manifest as the session's evidentiary trail
// (§4.10). The manifest's canonical hash, not the manifest itself, is
// appended to the hash-chained ledger, so a manifest produced later in a
// dispute over "what was the operator shown" can be checked against the
// chain; the manifest is returned to the caller.
func (l *Loop) Capture(ctx context.Context, sessionID string, focus contracts.FocusState, packet *contracts.ShowPacket) (*contracts.ViewportManifest, error) {
	hashes := make(map[string]string, len(packet.Viewports))
	for _, vp := range packet.Viewports {
		hash, err := canonicalize.CanonicalHash(vp.Payload)
		if err != nil {
			return nil, fmt.Errorf("showloop: hashing %s viewport: %w", vp.Kind, err)
		}
		hashes[string(vp.Kind)] = hash
	}

	manifest := &contracts.ViewportManifest{
		ManifestID:     uuid.NewString(),
		SessionID:      sessionID,
		FocusState:     focus,
		ViewportHashes: hashes,
		CapturedAt:     l.clock(),
	}

	manifestHash, err := canonicalize.CanonicalHash(manifest)
	if err != nil {
		return nil, fmt.Errorf("showloop: hashing manifest: %w", err)
	}
	l.manifests.Append("viewport_capture", manifestHash)

	return manifest, nil
}
