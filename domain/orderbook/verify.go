package orderbook

import (
	"context"

	"github.com/shopspring/decimal"
)

type VerifyStatus int

const (
	VerifyValid VerifyStatus = iota
	VerifyRemove
	VerifyUpdate
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyRemove:
		return "REMOVE"
	case VerifyUpdate:
		return "UPDATE"
	default:
		return "VALID"
	}
}

// VerifyResult is the authority's verdict on a candidate resting order.
// Size is meaningful only for VerifyUpdate.
type VerifyResult struct {
	Status VerifyStatus
	Size   decimal.Decimal
}

// VerifyFunc consults the external account authority before a resting order
// is consumed by a fill. The call blocks the matching loop; an error aborts
// the placement in progress. The engine re-reads the candidate's state after
// the call returns, so an UPDATE verdict takes effect before any fill
// arithmetic.
type VerifyFunc func(ctx context.Context, orderID string, size decimal.Decimal) (VerifyResult, error)
