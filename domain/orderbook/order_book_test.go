package orderbook

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysValid(ctx context.Context, orderID string, size decimal.Decimal) (VerifyResult, error) {
	return VerifyResult{Status: VerifyValid}, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// registryOK checks that every registry entry rests in exactly one queue of
// its own side and that the book holds nothing else.
func registryOK(t *testing.T, b *OrderBook) {
	t.Helper()
	counted := 0
	for _, side := range []*OrderSide{b.bids, b.asks} {
		side.tree.ForEachAscending(func(q *OrderQueue) bool {
			require.Positive(t, q.Len(), "no empty level may remain in a side")
			for o := q.Head(); o != nil; o = o.Next() {
				got, ok := b.orders[o.ID]
				require.True(t, ok, "resting order %s missing from registry", o.ID)
				require.Same(t, o, got)
				counted++
			}
			return true
		})
	}
	require.Equal(t, len(b.orders), counted)
}

func TestLimitValidation(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()

	res, err := b.Limit(ctx, Buy, "b1", d("5"), d("0.40"), "u1")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	// Scenario D: duplicate id leaves the book unchanged.
	res, err = b.Limit(ctx, Buy, "b1", d("1"), d("0.40"), "u1")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, ErrOrderExists)
	assert.Equal(t, 1, b.Len())

	res, _ = b.Limit(ctx, Buy, "b2", d("0"), d("0.40"), "u1")
	assert.ErrorIs(t, res.Err, ErrInvalidQuantity)
	res, _ = b.Limit(ctx, Buy, "b2", d("-3"), d("0.40"), "u1")
	assert.ErrorIs(t, res.Err, ErrInvalidQuantity)

	res, _ = b.Limit(ctx, Buy, "b2", d("1"), d("0"), "u1")
	assert.ErrorIs(t, res.Err, ErrInvalidPrice)
	res, _ = b.Limit(ctx, Buy, "b2", d("1"), d("-0.40"), "u1")
	assert.ErrorIs(t, res.Err, ErrInvalidPrice)
	registryOK(t, b)
}

func TestLimitRestsOnEmptyBook(t *testing.T) {
	// Scenario A
	b := New(alwaysValid)
	res, err := b.Limit(context.Background(), Buy, "b1", d("5"), d("0.40"), "u1")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	assert.Empty(t, res.ExecutedOrders)
	assert.True(t, res.PartialQuantity.Equal(d("5")))

	asks, bids := b.Depth()
	assert.Empty(t, asks)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(d("0.40")))
	assert.True(t, bids[0].Volume.Equal(d("5")))
	registryOK(t, b)
}

func TestComplementaryFullFillWithResidual(t *testing.T) {
	// Scenario B
	b := New(alwaysValid)
	ctx := context.Background()
	_, err := b.Limit(ctx, Buy, "b1", d("5"), d("0.40"), "u1")
	require.NoError(t, err)

	res, err := b.Limit(ctx, Sell, "s1", d("10"), d("0.60"), "u2")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	require.Len(t, res.ExecutedOrders, 1)
	rec := res.ExecutedOrders[0]
	assert.Equal(t, "b1", rec.Order.ID)
	assert.True(t, rec.Order.Size.Equal(d("5")), "record freezes the pre-fill size")
	assert.True(t, rec.QuantityExecuted.Equal(d("5")))
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.True(t, res.PartialQuantity.Equal(d("5")))

	asks, bids := b.Depth()
	assert.Empty(t, bids)
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(d("0.60")))
	assert.True(t, asks[0].Volume.Equal(d("5")))

	assert.Nil(t, b.Order("b1"))
	assert.NotNil(t, b.Order("s1"))
	registryOK(t, b)
}

func TestComplementaryPartialFill(t *testing.T) {
	// Scenario C
	b := New(alwaysValid)
	ctx := context.Background()
	_, err := b.Limit(ctx, Buy, "b2", d("20"), d("0.50"), "u1")
	require.NoError(t, err)

	res, err := b.Limit(ctx, Sell, "s2", d("8"), d("0.50"), "u2")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	require.Len(t, res.ExecutedOrders, 1)
	rec := res.ExecutedOrders[0]
	assert.Equal(t, "b2", rec.Order.ID)
	assert.True(t, rec.Order.Size.Equal(d("12")), "head shrinks by the executed quantity")
	assert.True(t, rec.QuantityExecuted.Equal(d("8")))
	assert.Equal(t, StatusPartialOpen, rec.Status)
	assert.True(t, res.PartialQuantity.IsZero())

	assert.Nil(t, b.Order("s2"), "fully consumed order never rests")
	b2 := b.Order("b2")
	require.NotNil(t, b2)
	assert.True(t, b2.Size.Equal(d("12")))
	registryOK(t, b)
}

func TestNoMatchWithoutExactComplement(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("5"), d("0.41"), "u1")

	// 0.60 needs a 0.40 bid level; the 0.41 level is a near-miss.
	res, err := b.Limit(ctx, Sell, "s1", d("5"), d("0.60"), "u2")
	require.NoError(t, err)
	assert.Empty(t, res.ExecutedOrders)
	assert.True(t, res.PartialQuantity.Equal(d("5")))
	assert.Equal(t, 2, b.Len())
	registryOK(t, b)
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "first", d("4"), d("0.30"), "u1")
	_, _ = b.Limit(ctx, Buy, "second", d("4"), d("0.30"), "u2")

	res, err := b.Limit(ctx, Sell, "s1", d("6"), d("0.70"), "u3")
	require.NoError(t, err)

	require.Len(t, res.ExecutedOrders, 2)
	assert.Equal(t, "first", res.ExecutedOrders[0].Order.ID)
	assert.Equal(t, StatusCompleted, res.ExecutedOrders[0].Status)
	assert.Equal(t, "second", res.ExecutedOrders[1].Order.ID)
	assert.Equal(t, StatusPartialOpen, res.ExecutedOrders[1].Status)
	assert.True(t, res.ExecutedOrders[1].QuantityExecuted.Equal(d("2")))
	registryOK(t, b)
}

func TestVerifyRemoveEvictsCandidate(t *testing.T) {
	removed := map[string]bool{"b1": true}
	hook := func(ctx context.Context, orderID string, size decimal.Decimal) (VerifyResult, error) {
		if removed[orderID] {
			return VerifyResult{Status: VerifyRemove}, nil
		}
		return VerifyResult{Status: VerifyValid}, nil
	}

	b := New(hook)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("5"), d("0.40"), "u1")
	_, _ = b.Limit(ctx, Buy, "b2", d("3"), d("0.40"), "u2")

	res, err := b.Limit(ctx, Sell, "s1", d("3"), d("0.60"), "u3")
	require.NoError(t, err)

	// b1 evicted without consuming demand; b2 filled in full.
	require.Len(t, res.ExecutedOrders, 1)
	assert.Equal(t, "b2", res.ExecutedOrders[0].Order.ID)
	assert.True(t, res.ExecutedOrders[0].QuantityExecuted.Equal(d("3")))
	assert.True(t, res.PartialQuantity.IsZero())
	assert.Nil(t, b.Order("b1"), "REMOVE evicts from the registry too")
	registryOK(t, b)
}

func TestVerifyRemoveOnlyOrderEvictsLevel(t *testing.T) {
	hook := func(ctx context.Context, orderID string, size decimal.Decimal) (VerifyResult, error) {
		return VerifyResult{Status: VerifyRemove}, nil
	}
	b := New(hook)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("5"), d("0.40"), "u1")

	res, err := b.Limit(ctx, Sell, "s1", d("5"), d("0.60"), "u2")
	require.NoError(t, err)
	assert.Empty(t, res.ExecutedOrders)
	assert.True(t, res.PartialQuantity.Equal(d("5")), "demand was never consumed")

	asks, bids := b.Depth()
	assert.Empty(t, bids, "evicted level must not linger")
	require.Len(t, asks, 1)
	registryOK(t, b)
}

func TestVerifyUpdateShrinksBeforeMatching(t *testing.T) {
	hook := func(ctx context.Context, orderID string, size decimal.Decimal) (VerifyResult, error) {
		if orderID == "b1" {
			return VerifyResult{Status: VerifyUpdate, Size: d("2")}, nil
		}
		return VerifyResult{Status: VerifyValid}, nil
	}
	b := New(hook)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("10"), d("0.40"), "u1")

	res, err := b.Limit(ctx, Sell, "s1", d("5"), d("0.60"), "u2")
	require.NoError(t, err)

	require.Len(t, res.ExecutedOrders, 1)
	rec := res.ExecutedOrders[0]
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.True(t, rec.QuantityExecuted.Equal(d("2")), "fill uses the updated size")
	assert.True(t, res.PartialQuantity.Equal(d("3")))
	registryOK(t, b)
}

func TestVerifyErrorAbortsPlacement(t *testing.T) {
	boom := errors.New("account service down")
	calls := 0
	hook := func(ctx context.Context, orderID string, size decimal.Decimal) (VerifyResult, error) {
		calls++
		if calls > 1 {
			return VerifyResult{}, boom
		}
		return VerifyResult{Status: VerifyValid}, nil
	}
	b := New(hook)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("2"), d("0.40"), "u1")
	_, _ = b.Limit(ctx, Buy, "b2", d("2"), d("0.40"), "u2")

	res, err := b.Limit(ctx, Sell, "s1", d("10"), d("0.60"), "u3")
	require.ErrorIs(t, err, boom)

	// The first fill stands; the unmatched remainder was not rested.
	require.Len(t, res.ExecutedOrders, 1)
	assert.Equal(t, "b1", res.ExecutedOrders[0].Order.ID)
	assert.Nil(t, b.Order("s1"))
	assert.NotNil(t, b.Order("b2"))
	registryOK(t, b)
}

func TestCancel(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("5"), d("0.40"), "u1")
	_, _ = b.Limit(ctx, Sell, "s1", d("3"), d("0.70"), "u2")

	o := b.Cancel("b1")
	require.NotNil(t, o)
	assert.Equal(t, "b1", o.ID)
	assert.Nil(t, b.Order("b1"))

	// Scenario E: unknown id is a silent no-op.
	assert.Nil(t, b.Cancel("nope"))
	assert.Equal(t, 1, b.Len())
	registryOK(t, b)
}

func TestCancelMiddleOfQueue(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "a", d("1"), d("0.40"), "u1")
	_, _ = b.Limit(ctx, Buy, "bb", d("2"), d("0.40"), "u1")
	_, _ = b.Limit(ctx, Buy, "c", d("3"), d("0.40"), "u1")

	require.NotNil(t, b.Cancel("bb"))
	q := b.bids.Find(d("0.40"))
	require.NotNil(t, q)
	assert.Equal(t, "a", q.Head().ID)
	assert.Equal(t, "c", q.Tail().ID)
	assert.True(t, q.Volume().Equal(d("4")))
	registryOK(t, b)
}

func TestModify(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("5"), d("0.40"), "u1")

	o, err := b.Modify("b1", OrderUpdate{Side: Buy, Size: d("9")})
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.Size.Equal(d("9")))

	o, err = b.Modify("b1", OrderUpdate{Side: Buy, Price: d("0.45")})
	require.NoError(t, err)
	assert.True(t, o.Price.Equal(d("0.45")))
	assert.Nil(t, b.bids.Find(d("0.40")))

	o, err = b.Modify("missing", OrderUpdate{Side: Buy, Size: d("1")})
	require.NoError(t, err)
	assert.Nil(t, o)

	_, err = b.Modify("b1", OrderUpdate{Side: Side(7)})
	assert.ErrorIs(t, err, ErrInvalidSide)
	registryOK(t, b)
}

func TestDepthBothSidesDescending(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("1"), d("0.20"), "u1")
	_, _ = b.Limit(ctx, Buy, "b2", d("2"), d("0.35"), "u1")
	_, _ = b.Limit(ctx, Sell, "s1", d("3"), d("0.90"), "u2")
	_, _ = b.Limit(ctx, Sell, "s2", d("4"), d("0.75"), "u2")

	asks, bids := b.Depth()
	require.Len(t, asks, 2)
	require.Len(t, bids, 2)
	assert.True(t, asks[0].Price.Equal(d("0.90")))
	assert.True(t, asks[1].Price.Equal(d("0.75")))
	assert.True(t, bids[0].Price.Equal(d("0.35")))
	assert.True(t, bids[1].Price.Equal(d("0.20")))
}

func TestClampPrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "0.95"},    // base price clamps to the upper bound
		{"0.04", "0.05"}, // below the band clamps up
		{"0.01", "0.05"},
		{"0.05", "0.05"},
		{"0.40", "0.4"},
		{"0.955", "0.96"}, // plain two-decimal rounding otherwise
		{"0.444", "0.44"},
	}
	for _, tc := range cases {
		got := clampPrice(d(tc.in))
		assert.True(t, got.Equal(d(tc.want)), "clamp(%s) = %s, want %s", tc.in, got, tc.want)
	}
}

func TestClampedCounterNeverMatchesOutOfBand(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	// An incoming 0.97 sell's complement (0.03) clamps up to the 0.05 band
	// edge. The clamped lookup finds the 0.05 bid level, but 0.97 + 0.05
	// is not a full contract, so no fill may occur.
	_, _ = b.Limit(ctx, Buy, "b1", d("5"), d("0.05"), "u1")

	res, err := b.Limit(ctx, Sell, "s1", d("5"), d("0.97"), "u2")
	require.NoError(t, err)
	assert.Empty(t, res.ExecutedOrders)
	assert.True(t, res.PartialQuantity.Equal(d("5")))
	registryOK(t, b)
}

func TestSweepSeveralRestingOrders(t *testing.T) {
	b := New(alwaysValid)
	ctx := context.Background()
	_, _ = b.Limit(ctx, Buy, "b1", d("2"), d("0.40"), "u1")
	_, _ = b.Limit(ctx, Buy, "b2", d("3"), d("0.40"), "u1")
	_, _ = b.Limit(ctx, Buy, "b3", d("4"), d("0.40"), "u1")

	res, err := b.Limit(ctx, Sell, "s1", d("9"), d("0.60"), "u2")
	require.NoError(t, err)
	require.Len(t, res.ExecutedOrders, 3)
	for _, rec := range res.ExecutedOrders {
		assert.Equal(t, StatusCompleted, rec.Status)
	}
	assert.True(t, res.PartialQuantity.IsZero())
	assert.Equal(t, 0, b.Len())

	asks, bids := b.Depth()
	assert.Empty(t, asks)
	assert.Empty(t, bids)
}
