package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"helios/wire"
)

// Matcher prices admitted market orders. A market order has no price
// of its own, so it fills at the close of the latest tick seen for its
// symbol; with no tick yet there is nothing to price against and the
// order is rejected.
type Matcher struct {
	trades     Publisher
	rejections Publisher
	log        *zap.Logger

	mu       sync.RWMutex
	lastTick map[string]wire.MarketDataTick
}

// NewMatcher wires the pipeline.
func NewMatcher(trades, rejections Publisher, log *zap.Logger) *Matcher {
	return &Matcher{
		trades:     trades,
		rejections: rejections,
		log:        log,
		lastTick:   make(map[string]wire.MarketDataTick),
	}
}

// HandleTick is the bus handler for the market-data stream. It only
// refreshes the per-symbol tick cache.
func (m *Matcher) HandleTick(_ context.Context, _ []byte, value []byte) error {
	tick, err := wire.Decode[wire.MarketDataTick](value)
	if err != nil {
		m.log.Warn("dropping undecodable tick", zap.Error(err))
		return nil
	}
	m.mu.Lock()
	m.lastTick[tick.Symbol] = tick
	m.mu.Unlock()
	return nil
}

// HandleOrder is the bus handler for admitted market orders.
func (m *Matcher) HandleOrder(ctx context.Context, key, value []byte) error {
	order, err := wire.Decode[wire.Order](value)
	if err != nil {
		m.log.Warn("dropping undecodable order", zap.Error(err))
		return nil
	}

	m.mu.RLock()
	tick, ok := m.lastTick[order.Symbol]
	m.mu.RUnlock()
	if !ok {
		m.log.Warn("no market data for symbol",
			zap.String("symbol", order.Symbol),
			zap.String("clOrderId", order.ClOrderID))
		payload, err := wire.Encode(wire.RejectedOrder{Order: order, Reason: wire.ReasonNoMarketData})
		if err != nil {
			return err
		}
		return m.rejections.Send(ctx, key, payload)
	}

	trade := wire.Trade{
		Order:    order,
		Symbol:   order.Symbol,
		Price:    tick.Close,
		Quantity: order.Quantity,
	}
	m.log.Debug("market order priced",
		zap.String("symbol", order.Symbol),
		zap.Float64("price", trade.Price))
	payload, err := wire.Encode(trade)
	if err != nil {
		return err
	}
	return m.trades.Send(ctx, key, payload)
}
