package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GuardainDev/opinion-trade-orderbook/domain/orderbook"
	"github.com/GuardainDev/opinion-trade-orderbook/infra/outbox"
	"github.com/GuardainDev/opinion-trade-orderbook/infra/sequence"
)

// OrderEvent is one inbound intent from the orders topic.
type OrderEvent struct {
	MarketID string          `json:"market_id"`
	Action   string          `json:"action"` // place | cancel | modify
	Side     string          `json:"side"`   // BUY | SELL
	OrderID  string          `json:"order_id"`
	Size     decimal.Decimal `json:"size"`
	Price    decimal.Decimal `json:"price"`
	Owner    string          `json:"owner"`
}

// Execution is one fill inside an ExecutionReport.
type Execution struct {
	OrderID          string          `json:"order_id"`
	Owner            string          `json:"owner"`
	Price            decimal.Decimal `json:"price"`
	QuantityExecuted decimal.Decimal `json:"quantity_executed"`
	Status           string          `json:"status"`
}

// ExecutionReport is the outbound record written to the outbox after every
// placement, including rejected ones.
type ExecutionReport struct {
	Seq             uint64          `json:"seq"`
	MarketID        string          `json:"market_id"`
	OrderID         string          `json:"order_id"`
	Error           string          `json:"error,omitempty"`
	Executions      []Execution     `json:"executions,omitempty"`
	PartialQuantity decimal.Decimal `json:"partial_quantity"`
	At              time.Time       `json:"at"`
}

// DepthPublisher pushes a fresh depth snapshot to live subscribers.
type DepthPublisher interface {
	PublishDepth(marketID string, asks, bids []orderbook.Level)
}

// Exchange is the ONLY write entry point into the system. It routes order
// events to per-market single-writer actors, persists execution reports in
// the outbox, and notifies depth subscribers.
type Exchange struct {
	mu      sync.RWMutex
	markets map[string]*Market
	runCtx  context.Context

	verify   orderbook.VerifyFunc
	box      *outbox.Outbox
	seq      *sequence.Sequencer
	depthPub DepthPublisher
	log      *zap.SugaredLogger
}

func NewExchange(verify orderbook.VerifyFunc, box *outbox.Outbox, seq *sequence.Sequencer, log *zap.SugaredLogger) *Exchange {
	return &Exchange{
		markets: make(map[string]*Market),
		verify:  verify,
		box:     box,
		seq:     seq,
		log:     log,
	}
}

// SetDepthPublisher wires the live depth feed. Optional; must be called
// before Start.
func (e *Exchange) SetDepthPublisher(p DepthPublisher) {
	e.depthPub = p
}

// Start pins the context that market goroutines live under. Must be called
// before the first event.
func (e *Exchange) Start(ctx context.Context) {
	e.runCtx = ctx
}

// market returns the actor for an ID, spawning it on first use. Books are
// created lazily per market, one single-writer goroutine each.
func (e *Exchange) market(id string) *Market {
	e.mu.RLock()
	m, ok := e.markets[id]
	e.mu.RUnlock()
	if ok {
		return m
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok = e.markets[id]; ok {
		return m
	}
	m = newMarket(id, e.verify, e.log)
	e.markets[id] = m
	go m.run(e.runCtx)
	return m
}

// lookup returns an existing market without creating one.
func (e *Exchange) lookup(id string) *Market {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.markets[id]
}

// HandleEvent implements the kafka consumer contract. Malformed events are
// dropped (redelivery cannot fix them); verification failures are reported
// and committed rather than redelivered, because replaying a placement
// whose fills already stand would double-execute them.
func (e *Exchange) HandleEvent(ctx context.Context, key, value []byte) error {
	var ev OrderEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		e.log.Errorw("dropping malformed order event", "key", string(key), "error", err)
		return nil
	}
	if ev.MarketID == "" || ev.OrderID == "" {
		e.log.Errorw("dropping order event without market or order id", "key", string(key))
		return nil
	}

	switch strings.ToLower(ev.Action) {
	case "place":
		return e.handlePlace(ctx, ev)
	case "cancel":
		return e.handleCancel(ctx, ev)
	case "modify":
		return e.handleModify(ctx, ev)
	default:
		e.log.Errorw("dropping order event with unknown action", "action", ev.Action)
		return nil
	}
}

func (e *Exchange) handlePlace(ctx context.Context, ev OrderEvent) error {
	side, err := ParseSide(ev.Side)
	if err != nil {
		e.log.Errorw("dropping place with bad side", "order_id", ev.OrderID, "side", ev.Side)
		return nil
	}

	m := e.market(ev.MarketID)
	res, err := m.Place(ctx, side, ev.OrderID, ev.Size, ev.Price, ev.Owner)
	if err != nil {
		e.log.Errorw("placement aborted by verification failure",
			"market_id", ev.MarketID, "order_id", ev.OrderID, "error", err)
	}

	report := ExecutionReport{
		MarketID: ev.MarketID,
		OrderID:  ev.OrderID,
		At:       time.Now(),
	}
	if err != nil {
		report.Error = err.Error()
	}
	if res != nil {
		if res.Err != nil {
			report.Error = res.Err.Error()
		}
		report.PartialQuantity = res.PartialQuantity
		for _, rec := range res.ExecutedOrders {
			report.Executions = append(report.Executions, Execution{
				OrderID:          rec.Order.ID,
				Owner:            rec.Order.Owner,
				Price:            rec.Order.Price,
				QuantityExecuted: rec.QuantityExecuted,
				Status:           rec.Status.String(),
			})
		}
	}

	if err := e.writeReport(&report); err != nil {
		return fmt.Errorf("outbox append: %w", err)
	}
	e.publishDepth(ctx, m)
	return nil
}

func (e *Exchange) handleCancel(ctx context.Context, ev OrderEvent) error {
	m := e.market(ev.MarketID)
	o, err := m.Cancel(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if o == nil {
		e.log.Debugw("cancel of unknown order", "market_id", ev.MarketID, "order_id", ev.OrderID)
		return nil
	}
	e.log.Infow("order canceled", "market_id", ev.MarketID, "order_id", ev.OrderID)
	e.publishDepth(ctx, m)
	return nil
}

func (e *Exchange) handleModify(ctx context.Context, ev OrderEvent) error {
	side, err := ParseSide(ev.Side)
	if err != nil {
		e.log.Errorw("dropping modify with bad side", "order_id", ev.OrderID, "side", ev.Side)
		return nil
	}

	m := e.market(ev.MarketID)
	o, err := m.Modify(ctx, ev.OrderID, orderbook.OrderUpdate{
		Side:  side,
		Price: ev.Price,
		Size:  ev.Size,
	})
	if err != nil {
		e.log.Errorw("modify rejected", "market_id", ev.MarketID, "order_id", ev.OrderID, "error", err)
		return nil
	}
	if o == nil {
		e.log.Debugw("modify of unknown order", "market_id", ev.MarketID, "order_id", ev.OrderID)
		return nil
	}
	e.log.Infow("order modified", "market_id", ev.MarketID, "order_id", ev.OrderID)
	e.publishDepth(ctx, m)
	return nil
}

func (e *Exchange) writeReport(report *ExecutionReport) error {
	report.Seq = e.seq.Next()
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return e.box.Append(report.Seq, payload)
}

func (e *Exchange) publishDepth(ctx context.Context, m *Market) {
	if e.depthPub == nil {
		return
	}
	asks, bids, err := m.Depth(ctx)
	if err != nil {
		return
	}
	e.depthPub.PublishDepth(m.id, asks, bids)
}

// Depth returns the depth snapshot for an existing market. The second
// return is false when the market has never seen an order.
func (e *Exchange) Depth(ctx context.Context, marketID string) (asks, bids []orderbook.Level, ok bool, err error) {
	m := e.lookup(marketID)
	if m == nil {
		return nil, nil, false, nil
	}
	asks, bids, err = m.Depth(ctx)
	return asks, bids, true, err
}

// Order returns a snapshot of one resting order, nil if absent.
func (e *Exchange) Order(ctx context.Context, marketID, orderID string) (*orderbook.Order, error) {
	m := e.lookup(marketID)
	if m == nil {
		return nil, nil
	}
	return m.Order(ctx, orderID)
}

// ParseSide maps the wire spelling of a side to its domain value.
func ParseSide(s string) (orderbook.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return orderbook.Buy, nil
	case "SELL":
		return orderbook.Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", orderbook.ErrInvalidSide, s)
	}
}
