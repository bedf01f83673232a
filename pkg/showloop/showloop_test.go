package showloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardkit/semos/pkg/contracts"
	"github.com/onboardkit/semos/pkg/ledger"
)

func TestLoop_RenderOnlyIncludesRegisteredPanels(t *testing.T) {
	renderers := RendererRegistry{
		contracts.ViewportFocus: func(ctx context.Context, focus contracts.FocusState) (map[string]any, error) {
			return map[string]any{"taxonomy": focus.TaxonomyFocus}, nil
		},
	}
	loop := New(renderers, ledger.NewTypedLedger(ledger.LedgerTypeViewport))

	packet, err := loop.Render(context.Background(), contracts.FocusState{TaxonomyFocus: "custody"})
	require.NoError(t, err)
	require.Len(t, packet.Viewports, 1)
	assert.Equal(t, contracts.ViewportFocus, packet.Viewports[0].Kind)
}

func TestLoop_CaptureProducesDeterministicHashes(t *testing.T) {
	renderers := RendererRegistry{
		contracts.ViewportFocus: func(ctx context.Context, focus contracts.FocusState) (map[string]any, error) {
			return map[string]any{"a": 1, "b": 2}, nil
		},
	}
	manifestLedger := ledger.NewTypedLedger(ledger.LedgerTypeViewport)
	loop := New(renderers, manifestLedger).WithClock(func() time.Time { return time.Unix(1000, 0) })

	focus := contracts.FocusState{OverlayMode: contracts.OverlayActiveOnly}
	packet, err := loop.Render(context.Background(), focus)
	require.NoError(t, err)

	m1, err := loop.Capture(context.Background(), "sess-1", focus, packet)
	require.NoError(t, err)
	m2, err := loop.Capture(context.Background(), "sess-1", focus, packet)
	require.NoError(t, err)

	assert.Equal(t, m1.ViewportHashes, m2.ViewportHashes, "identical payloads must hash identically")
	assert.Equal(t, 2, manifestLedger.Length())

	ok, err := manifestLedger.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}
