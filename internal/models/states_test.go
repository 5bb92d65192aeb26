package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

func TestDetectTransition(t *testing.T) {
	assert.Equal(t, StockRestocked, DetectTransition(false, true))
	assert.Equal(t, StockDepleted, DetectTransition(true, false))
	assert.Equal(t, StockUnchanged, DetectTransition(true, true))
	assert.Equal(t, StockUnchanged, DetectTransition(false, false))
	assert.Equal(t, "restocked", StockRestocked.String())
}

func TestSubscriptionMarkNotified(t *testing.T) {
	sub := Subscription{ID: "s1", Status: SubscriptionPending}
	at := time.Now()

	require.NoError(t, sub.MarkNotified(at))
	assert.False(t, sub.Pending())
	require.NotNil(t, sub.NotifiedAt)
	assert.True(t, sub.NotifiedAt.Equal(at))

	assert.ErrorIs(t, sub.MarkNotified(time.Now()), ErrAlreadyNotified)
	assert.True(t, sub.NotifiedAt.Equal(at))
}

func TestReorderStatusZeroValueIsIdle(t *testing.T) {
	var status ReorderStatus
	assert.False(t, status.InProgress())
	assert.True(t, ReorderInProgress.InProgress())
}

func TestRefreshVariantStockLeavesSiblingsAlone(t *testing.T) {
	p := &Product{TrackInventory: true, HasVariants: true, Variants: Variants{
		{ID: "a", TrackInventory: true, StockQuantity: 5, InStock: boolPtr(false)},
		{ID: "b", StockQuantity: 0, InStock: boolPtr(true)},
		{ID: "c", TrackInventory: true, StockQuantity: 3},
	}}
	p.RefreshVariantStock("a")

	assert.True(t, p.Variant("a").IsInStock())
	assert.True(t, p.Variant("b").IsInStock())
	assert.Nil(t, p.Variant("c").InStock)
	assert.True(t, p.InStock)
}

func TestRefreshVariantStockDerivesProductFlag(t *testing.T) {
	p := &Product{HasVariants: true, InStock: true, Variants: Variants{
		{ID: "a", StockQuantity: 0, InStock: boolPtr(true)},
		{ID: "b", StockQuantity: 4},
	}}
	p.RefreshVariantStock("a")

	assert.False(t, p.Variant("a").IsInStock())
	assert.False(t, p.InStock)

	p.RefreshVariantStock("missing")
	assert.False(t, p.InStock)
}

func TestProductAvailability(t *testing.T) {
	assert.True(t, (&Product{TrackInventory: false}).Available())
	assert.False(t, (&Product{TrackInventory: true}).Available())
	assert.True(t, (&Product{TrackInventory: true, StockQuantity: 1}).Available())
}

func TestCloneDoesNotShareVariants(t *testing.T) {
	p := &Product{ID: "p1", Variants: Variants{{ID: "v1", StockQuantity: 1}}}
	c := p.Clone()
	c.Variant("v1").StockQuantity = 9
	assert.Equal(t, 1, p.Variant("v1").StockQuantity)
}

func TestVariantsRoundTripThroughColumn(t *testing.T) {
	in := Variants{{ID: "v1", StockQuantity: 3, ReorderStatus: ReorderInProgress}}
	raw, err := in.Value()
	require.NoError(t, err)

	var out Variants
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, in, out)

	empty, err := Variants(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), empty)
}
