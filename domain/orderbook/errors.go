package orderbook

import "errors"

// Error taxonomy surfaced to callers. Validation failures travel inside
// PlacementResult.Err; ErrInvalidSide is returned from Modify directly
// because it indicates a malformed caller, not a data condition.
var (
	ErrOrderExists     = errors.New("order already exists")
	ErrInvalidQuantity = errors.New("invalid order quantity")
	ErrInvalidPrice    = errors.New("invalid order price")
	ErrInvalidSide     = errors.New("invalid order side")
)
