package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GuardainDev/opinion-trade-orderbook/domain/orderbook"
)

// Market wraps one engine instance behind a mailbox. The run loop is the
// only goroutine that ever touches the book, which gives the engine the
// strict serialization it requires: the matching loop suspends at every
// verification call with the book in a partially-mutated state, so even
// read-only calls must wait their turn.
type Market struct {
	id   string
	book *orderbook.OrderBook
	cmds chan func()
	log  *zap.SugaredLogger
}

func newMarket(id string, verify orderbook.VerifyFunc, log *zap.SugaredLogger) *Market {
	return &Market{
		id:   id,
		book: orderbook.New(verify),
		cmds: make(chan func(), 64),
		log:  log,
	}
}

func (m *Market) run(ctx context.Context) {
	m.log.Infow("market started", "market_id", m.id)
	for {
		select {
		case <-ctx.Done():
			m.log.Infow("market stopped", "market_id", m.id)
			return
		case fn := <-m.cmds:
			fn()
		}
	}
}

// do runs fn on the market goroutine and waits for it. If the caller's
// context ends first the command may still execute later; the caller just
// stops waiting for it.
func (m *Market) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.cmds <- func() {
		defer close(done)
		fn()
	}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Market) Place(ctx context.Context, side orderbook.Side, orderID string, size, price decimal.Decimal, owner string) (*orderbook.PlacementResult, error) {
	var (
		res    *orderbook.PlacementResult
		runErr error
	)
	if err := m.do(ctx, func() {
		res, runErr = m.book.Limit(ctx, side, orderID, size, price, owner)
	}); err != nil {
		return nil, err
	}
	return res, runErr
}

func (m *Market) Cancel(ctx context.Context, orderID string) (*orderbook.Order, error) {
	var o *orderbook.Order
	if err := m.do(ctx, func() {
		o = m.book.Cancel(orderID)
	}); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *Market) Modify(ctx context.Context, orderID string, upd orderbook.OrderUpdate) (*orderbook.Order, error) {
	var (
		o      *orderbook.Order
		runErr error
	)
	if err := m.do(ctx, func() {
		o, runErr = m.book.Modify(orderID, upd)
	}); err != nil {
		return nil, err
	}
	return o, runErr
}

func (m *Market) Order(ctx context.Context, orderID string) (*orderbook.Order, error) {
	var o *orderbook.Order
	if err := m.do(ctx, func() {
		if resting := m.book.Order(orderID); resting != nil {
			o = resting.Snapshot()
		}
	}); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *Market) Depth(ctx context.Context) (asks, bids []orderbook.Level, err error) {
	err = m.do(ctx, func() {
		asks, bids = m.book.Depth()
	})
	return asks, bids, err
}
