package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Opposite returns the side an incoming order is matched against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is one resting order. Treat it as immutable outside this package:
// matching replaces the queue head with a fresh value instead of shrinking
// a shared one, so execution records can hold snapshots safely.
type Order struct {
	ID        string
	Side      Side
	Size      decimal.Decimal
	Price     decimal.Decimal
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time

	// queue links, owned by the OrderQueue the order rests in
	next *Order
	prev *Order
}

func NewOrder(id string, side Side, size, price decimal.Decimal, owner string, at time.Time) *Order {
	return &Order{
		ID:        id,
		Side:      side,
		Size:      size,
		Price:     price,
		Owner:     owner,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Snapshot returns a detached copy with the queue links cleared.
func (o *Order) Snapshot() *Order {
	cp := *o
	cp.next = nil
	cp.prev = nil
	return &cp
}

// Read-only traversal helper.
func (o *Order) Next() *Order {
	return o.next
}

// OrderUpdate describes a modification of a resting order. A zero Price or
// Size means "leave unchanged".
type OrderUpdate struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

type OrderStatus int

const (
	StatusPartialOpen OrderStatus = iota
	StatusCompleted
)

func (s OrderStatus) String() string {
	if s == StatusCompleted {
		return "COMPLETED"
	}
	return "PARTIAL_OPEN"
}

// ExecutionRecord reports one fill produced by a placement call. Order is a
// snapshot: for a completed fill its Size is the pre-fill value, for a
// partial fill it is the shrunk order left resting.
type ExecutionRecord struct {
	Order            *Order
	QuantityExecuted decimal.Decimal
	Status           OrderStatus
}

// PlacementResult is the outcome of a single Limit call. Err carries
// validation failures; when it is set the other fields are zero.
// PartialQuantity is the quantity left resting on the placer's side after
// matching, zero when the incoming order was fully consumed.
type PlacementResult struct {
	Err             error
	ExecutedOrders  []ExecutionRecord
	PartialQuantity decimal.Decimal
}

// Level is one (price, volume) depth entry.
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}
