package orderbook

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Pricing policy for a binary-outcome market: every price lives in (0,1)
// and a BUY at p settles against a SELL at 1-p.
var (
	basePrice           = decimal.NewFromInt(1)
	highestAllowedPrice = decimal.RequireFromString("0.95")
	lowestAllowedPrice  = decimal.RequireFromString("0.05")
)

// OrderBook is the matching engine for one market. It is single-writer:
// Limit, Cancel and Modify must never run concurrently on the same book,
// and the verification hook suspends the matching loop with the book in a
// partially-mutated state. Wrap each book behind a sequential command queue
// (see service.Market) instead of sharing it across goroutines.
type OrderBook struct {
	orders map[string]*Order
	bids   *OrderSide
	asks   *OrderSide
	verify VerifyFunc
}

func New(verify VerifyFunc) *OrderBook {
	return &OrderBook{
		orders: make(map[string]*Order),
		bids:   NewOrderSide(),
		asks:   NewOrderSide(),
		verify: verify,
	}
}

// Limit places a limit order and matches it against the complementary level
// of the opposite side under price-time priority.
//
// Validation failures (duplicate id, non-positive size or price) come back
// in PlacementResult.Err with the book untouched. The returned error is
// reserved for verification hook failures: fills recorded before the
// failure stand, and the remaining quantity is not rested.
func (b *OrderBook) Limit(ctx context.Context, side Side, orderID string, size, price decimal.Decimal, owner string) (*PlacementResult, error) {
	res := &PlacementResult{}

	if _, ok := b.orders[orderID]; ok {
		res.Err = ErrOrderExists
		return res, nil
	}
	if !size.IsPositive() {
		res.Err = ErrInvalidQuantity
		return res, nil
	}
	if !price.IsPositive() {
		res.Err = ErrInvalidPrice
		return res, nil
	}

	opposing := b.asks
	own := b.bids
	if side == Sell {
		opposing = b.bids
		own = b.asks
	}

	remaining := size
	counter := clampPrice(basePrice.Sub(price))

	if q := opposing.Find(counter); q != nil && complements(price, q.Price()) {
		records, left, err := b.processQueue(ctx, opposing, q, remaining)
		res.ExecutedOrders = records
		if err != nil {
			return res, err
		}
		remaining = left
	}

	if remaining.IsPositive() {
		o := NewOrder(orderID, side, remaining, price, owner, time.Now())
		b.orders[orderID] = own.Append(o)
		res.PartialQuantity = remaining
	} else {
		res.PartialQuantity = decimal.Zero
	}
	return res, nil
}

// processQueue drains the complementary level head-first. Every candidate
// passes through the verification hook before its fill is applied.
func (b *OrderBook) processQueue(ctx context.Context, side *OrderSide, q *OrderQueue, remaining decimal.Decimal) ([]ExecutionRecord, decimal.Decimal, error) {
	var records []ExecutionRecord

	for remaining.IsPositive() && q.Len() > 0 {
		head := q.Head()

		verdict, err := b.verify(ctx, head.ID, head.Size)
		if err != nil {
			side.Evict(q)
			return records, remaining, fmt.Errorf("verify order %s: %w", head.ID, err)
		}

		switch verdict.Status {
		case VerifyRemove:
			// The authority disowned the candidate: evict it without
			// consuming any incoming quantity.
			q.Remove(head)
			delete(b.orders, head.ID)
			continue
		case VerifyUpdate:
			q.Resize(head, verdict.Size)
		}

		if remaining.LessThan(head.Size) {
			shrunk := NewOrder(head.ID, head.Side, head.Size.Sub(remaining), head.Price, head.Owner, head.CreatedAt)
			shrunk.UpdatedAt = time.Now()
			q.ReplaceHead(shrunk)
			b.orders[head.ID] = shrunk
			records = append(records, ExecutionRecord{
				Order:            shrunk.Snapshot(),
				QuantityExecuted: remaining,
				Status:           StatusPartialOpen,
			})
			remaining = decimal.Zero
		} else {
			executed := head.Size
			q.RemoveHead()
			delete(b.orders, head.ID)
			records = append(records, ExecutionRecord{
				Order:            head.Snapshot(),
				QuantityExecuted: executed,
				Status:           StatusCompleted,
			})
			remaining = remaining.Sub(executed)
		}
	}

	side.Evict(q)
	return records, remaining, nil
}

// Cancel removes the order with the given ID from the book. Unknown IDs are
// a silent no-op: callers cannot tell "already gone" from "never existed".
func (b *OrderBook) Cancel(orderID string) *Order {
	o, ok := b.orders[orderID]
	if !ok {
		return nil
	}
	delete(b.orders, orderID)
	if o.Side == Buy {
		return b.bids.Remove(o)
	}
	return b.asks.Remove(o)
}

// Modify applies an update to a resting order. Unknown IDs are a silent
// no-op. An update whose side is neither Buy nor Sell is a caller bug and
// returns ErrInvalidSide.
func (b *OrderBook) Modify(orderID string, upd OrderUpdate) (*Order, error) {
	o, ok := b.orders[orderID]
	if !ok {
		return nil, nil
	}
	if upd.Side != Buy && upd.Side != Sell {
		return nil, ErrInvalidSide
	}
	if o.Side == Buy {
		return b.bids.Update(o, upd), nil
	}
	return b.asks.Update(o, upd), nil
}

// Order returns the resting order with the given ID, nil if absent.
func (b *OrderBook) Order(orderID string) *Order {
	return b.orders[orderID]
}

// Len returns the number of resting orders in the registry.
func (b *OrderBook) Len() int {
	return len(b.orders)
}

// Depth reports (price, volume) per level, strictly descending by price,
// independently for each side.
func (b *OrderBook) Depth() (asks, bids []Level) {
	return b.asks.Levels(), b.bids.Levels()
}

// clampPrice maps the complementary price into the allowed band: exactly
// the base price clamps to the upper bound, anything below the lower bound
// clamps up to it, everything else rounds to two decimals.
func clampPrice(v decimal.Decimal) decimal.Decimal {
	if v.Equal(basePrice) {
		return highestAllowedPrice
	}
	if v.LessThan(lowestAllowedPrice) {
		return lowestAllowedPrice
	}
	return v.Round(2)
}

// complements reports whether two prices settle a full binary contract.
// Only the exact complement matches; there is no price improvement.
func complements(p, q decimal.Decimal) bool {
	return p.Round(2).Add(q.Round(2)).Equal(basePrice)
}
