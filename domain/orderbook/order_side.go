package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide holds one side of the book: price levels indexed by a red-black
// tree. Both sides sort descending by stored price; "best" is the highest
// key, because an incoming order is matched against the exact complement of
// its own price, not against price-improved levels.
type OrderSide struct {
	tree *RBTree
}

func NewOrderSide() *OrderSide {
	return &OrderSide{tree: NewRBTree()}
}

// Append rests the order at its price level, creating the level if absent.
func (s *OrderSide) Append(o *Order) *Order {
	return s.tree.UpsertLevel(o.Price).Append(o)
}

// Find returns the queue at the exact price, nil if absent.
func (s *OrderSide) Find(price decimal.Decimal) *OrderQueue {
	return s.tree.FindLevel(price)
}

// MaxPriceQueue returns the queue at the highest stored price, nil when the
// side is empty.
func (s *OrderSide) MaxPriceQueue() *OrderQueue {
	return s.tree.MaxLevel()
}

// LessThan returns the queue with the greatest price strictly below the
// given one. Used to walk the depth ladder best-to-worst.
func (s *OrderSide) LessThan(price decimal.Decimal) *OrderQueue {
	return s.tree.Predecessor(price)
}

// Remove unlinks the order from its price level by identity, regardless of
// queue position, and evicts the level if it empties.
func (s *OrderSide) Remove(o *Order) *Order {
	q := s.tree.FindLevel(o.Price)
	if q == nil {
		return o
	}
	q.Remove(o)
	if q.Len() == 0 {
		s.tree.DeleteLevel(q.Price())
	}
	return o
}

// Update applies an OrderUpdate to a resting order. A size-only change
// resizes in place; a price change re-queues the order time-junior at its
// new level.
func (s *OrderSide) Update(o *Order, upd OrderUpdate) *Order {
	newPrice := o.Price
	if !upd.Price.IsZero() {
		newPrice = upd.Price
	}
	newSize := o.Size
	if !upd.Size.IsZero() {
		newSize = upd.Size
	}

	if newPrice.Equal(o.Price) {
		q := s.tree.FindLevel(o.Price)
		if q != nil {
			q.Resize(o, newSize)
		}
		return o
	}

	s.Remove(o)
	o.Price = newPrice
	o.Size = newSize
	o.UpdatedAt = time.Now()
	return s.Append(o)
}

// Evict drops the queue's level from the tree once it has emptied. The
// matching loop calls this after head-scoped removals; leaving an empty
// level behind would surface zero-volume prices to depth and best-queue
// lookups forever.
func (s *OrderSide) Evict(q *OrderQueue) {
	if q.Len() == 0 {
		s.tree.DeleteLevel(q.Price())
	}
}

// Depth returns the number of price levels on this side.
func (s *OrderSide) Depth() int {
	return s.tree.Size()
}

// Len returns the number of resting orders across all levels.
func (s *OrderSide) Len() int {
	n := 0
	s.tree.ForEachAscending(func(q *OrderQueue) bool {
		n += q.Len()
		return true
	})
	return n
}

// Volume returns the aggregate resting size across all levels.
func (s *OrderSide) Volume() decimal.Decimal {
	v := decimal.Zero
	s.tree.ForEachAscending(func(q *OrderQueue) bool {
		v = v.Add(q.Volume())
		return true
	})
	return v
}

// Levels reports (price, volume) pairs strictly descending by price.
func (s *OrderSide) Levels() []Level {
	levels := make([]Level, 0, s.tree.Size())
	for q := s.MaxPriceQueue(); q != nil; q = s.LessThan(q.Price()) {
		levels = append(levels, Level{Price: q.Price(), Volume: q.Volume()})
	}
	return levels
}
