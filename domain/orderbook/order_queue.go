package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderQueue is the FIFO of resting orders at a single price level.
// Head-scoped mutations (ReplaceHead, RemoveHead) act on whichever order is
// currently first; matching only ever touches the head. Cancellation uses
// the identity-scoped Remove, which unlinks the order wherever it sits.
//
// Invariant: volume == sum of Size over all linked orders.
type OrderQueue struct {
	price  decimal.Decimal
	volume decimal.Decimal

	head *Order
	tail *Order
	size int
}

func NewOrderQueue(price decimal.Decimal) *OrderQueue {
	return &OrderQueue{
		price:  price,
		volume: decimal.Zero,
	}
}

func (q *OrderQueue) Price() decimal.Decimal  { return q.price }
func (q *OrderQueue) Volume() decimal.Decimal { return q.volume }
func (q *OrderQueue) Len() int                { return q.size }

// Head returns the oldest order without removing it, nil when empty.
func (q *OrderQueue) Head() *Order { return q.head }

// Tail returns the newest order without removing it, nil when empty.
func (q *OrderQueue) Tail() *Order { return q.tail }

// Append links the order at the time-junior end.
func (q *OrderQueue) Append(o *Order) *Order {
	if q.head == nil {
		q.head = o
		q.tail = o
	} else {
		q.tail.next = o
		o.prev = q.tail
		q.tail = o
	}
	q.size++
	q.volume = q.volume.Add(o.Size)
	return o
}

// ReplaceHead swaps the current head for a new order in the same queue
// position, keeping its time-priority slot. Used when the head is partially
// filled and shrinks.
func (q *OrderQueue) ReplaceHead(o *Order) *Order {
	old := q.head
	if old == nil {
		return q.Append(o)
	}

	o.next = old.next
	o.prev = nil
	if o.next != nil {
		o.next.prev = o
	} else {
		q.tail = o
	}
	q.head = o

	old.next = nil
	old.prev = nil

	q.volume = q.volume.Sub(old.Size).Add(o.Size)
	return o
}

// RemoveHead unlinks and returns the oldest order, nil when empty.
func (q *OrderQueue) RemoveHead() *Order {
	o := q.head
	if o == nil {
		return nil
	}

	q.head = o.next
	if q.head != nil {
		q.head.prev = nil
	} else {
		q.tail = nil
	}

	o.next = nil
	o.prev = nil

	q.size--
	q.volume = q.volume.Sub(o.Size)
	return o
}

// Remove unlinks the given order wherever it sits in the queue.
func (q *OrderQueue) Remove(o *Order) *Order {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		q.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		q.tail = o.prev
	}

	o.next = nil
	o.prev = nil

	q.size--
	q.volume = q.volume.Sub(o.Size)
	return o
}

// Resize sets a resting order's size in place, adjusting the cached volume
// and refreshing the order's update timestamp.
func (q *OrderQueue) Resize(o *Order, newSize decimal.Decimal) {
	q.volume = q.volume.Add(newSize.Sub(o.Size))
	o.Size = newSize
	o.UpdatedAt = time.Now()
}
