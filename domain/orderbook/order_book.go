// Package orderbook implements the per-symbol limit order book: two
// price-ordered side trees of resting limit orders, matched in sweeps
// against incoming market-data ticks rather than order against order.
package orderbook

import (
	"go.uber.org/zap"

	"helios/wire"
)

// LimitOrderBook holds the resting buy and sell limit orders for one
// symbol. An order key appears in at most one of the two trees at any
// time. The book is mutated by a single logical writer; callers that
// share a book across goroutines must serialize on it.
type LimitOrderBook struct {
	symbol string
	buy    *SideTree
	sell   *SideTree
	log    *zap.Logger
}

// NewLimitOrderBook creates an empty book for symbol.
func NewLimitOrderBook(symbol string, log *zap.Logger) *LimitOrderBook {
	return &LimitOrderBook{
		symbol: symbol,
		buy:    NewSideTree(wire.Buy),
		sell:   NewSideTree(wire.Sell),
		log:    log,
	}
}

// Symbol is the symbol this book serves.
func (b *LimitOrderBook) Symbol() string { return b.symbol }

// AddOrder rests the order under key on the tree matching its side.
func (b *LimitOrderBook) AddOrder(key string, order wire.Order) {
	b.log.Debug("add order",
		zap.String("symbol", b.symbol),
		zap.String("key", key),
		zap.String("side", string(order.Side)))
	if order.Side == wire.Buy {
		b.buy.Add(key, order)
	} else {
		b.sell.Add(key, order)
	}
}

// RemoveOrder removes the order under key from whichever tree holds it.
func (b *LimitOrderBook) RemoveOrder(key string) (wire.Order, bool) {
	b.log.Debug("remove order",
		zap.String("symbol", b.symbol),
		zap.String("key", key))
	if b.buy.Contains(key) {
		return b.buy.Remove(key)
	}
	if b.sell.Contains(key) {
		return b.sell.Remove(key)
	}
	return wire.Order{}, false
}

// ReplaceOrder swaps the resting order under key and returns the prior
// order, for the caller to diff against for ledger effects.
func (b *LimitOrderBook) ReplaceOrder(key string, order wire.Order) (wire.Order, bool) {
	b.log.Debug("replace order",
		zap.String("symbol", b.symbol),
		zap.String("key", key))
	if b.buy.Contains(key) {
		return b.buy.Replace(key, order)
	}
	if b.sell.Contains(key) {
		return b.sell.Replace(key, order)
	}
	return wire.Order{}, false
}

// GetOrder looks up the resting order under key.
func (b *LimitOrderBook) GetOrder(key string) (wire.Order, bool) {
	if b.buy.Contains(key) {
		return b.buy.Get(key)
	}
	if b.sell.Contains(key) {
		return b.sell.Get(key)
	}
	return wire.Order{}, false
}

// BuyOrders returns a snapshot copy of the resting buy orders.
func (b *LimitOrderBook) BuyOrders() map[string]wire.Order { return b.buy.Orders() }

// SellOrders returns a snapshot copy of the resting sell orders.
func (b *LimitOrderBook) SellOrders() map[string]wire.Order { return b.sell.Orders() }

// TotalVolume reports the resting volume on one side.
func (b *LimitOrderBook) TotalVolume(side wire.Side) int64 {
	if side == wire.Buy {
		return b.buy.TotalVolume()
	}
	return b.sell.TotalVolume()
}

// SweepMatch matches the book against a tick's low/high interval: every
// resting buy with a limit at or above low and every resting sell with a
// limit at or below high traded through at some point inside the tick,
// so each is removed and filled whole at its own limit price. The tick
// bounds only trigger the match; they never set the fill price, because
// an OHLC summary does not reveal the exact crossing price.
func (b *LimitOrderBook) SweepMatch(low, high float64) map[string]wire.Trade {
	matched := b.buy.matchAtOrAbove(low)
	for key, order := range b.sell.matchAtOrBelow(high) {
		matched[key] = order
	}

	trades := make(map[string]wire.Trade, len(matched))
	for key, order := range matched {
		trades[key] = wire.Trade{
			Order:    order,
			Symbol:   b.symbol,
			Price:    order.Price,
			Quantity: order.Quantity,
		}
	}
	if len(trades) > 0 {
		b.log.Debug("sweep matched",
			zap.String("symbol", b.symbol),
			zap.Float64("low", low),
			zap.Float64("high", high),
			zap.Int("trades", len(trades)))
	}
	return trades
}
