package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"helios/wire"
)

// SymbolCatalog answers whether a symbol is tradeable. Implemented
// outside this package; the ledger only consumes it during admission.
type SymbolCatalog interface {
	IsValid(symbol string) bool
}

// ReservationPolicy decides whether admitting a limit order reserves
// its worst-case settlement cost up front.
//
// ReserveOnAdmit debits the buyer's balance (or the seller's position)
// when the order is admitted, so the book handler's cancel/replace
// adjustments always release a reservation that exists. ReserveNone
// admits limit orders without touching the ledger, reproducing the
// legacy behavior in which cancel/replace released funds that were
// never taken out.
type ReservationPolicy int

const (
	ReserveOnAdmit ReservationPolicy = iota
	ReserveNone
)

// IntegrityChecker runs every ledger-mutating check in the system:
// admission reservations, cancel/replace adjustments and trade
// settlement. All bound checks read the value inside the current
// optimistic attempt, never a stale snapshot.
type IntegrityChecker struct {
	store   Store
	symbols SymbolCatalog
	policy  ReservationPolicy
	log     *zap.Logger
}

// NewIntegrityChecker wires the checker.
func NewIntegrityChecker(store Store, symbols SymbolCatalog, policy ReservationPolicy, log *zap.Logger) *IntegrityChecker {
	return &IntegrityChecker{
		store:   store,
		symbols: symbols,
		policy:  policy,
		log:     log,
	}
}

// AdmitOrder validates a newly submitted order before it may reach the
// book or settlement. Structural failures and failed reservations come
// back as a reject reason; a non-nil error is a store fault and must
// halt the caller's partition.
func (c *IntegrityChecker) AdmitOrder(ctx context.Context, order wire.Order) (wire.Reason, error) {
	if order.Username == "" {
		c.log.Debug("order rejected: empty username")
		return wire.ReasonUnknownAccount, nil
	}
	if order.Symbol == "" || !c.symbols.IsValid(order.Symbol) {
		c.log.Debug("order rejected: unknown symbol", zap.String("symbol", order.Symbol))
		return wire.ReasonUnknownSymbol, nil
	}
	if order.Quantity <= 0 {
		c.log.Debug("order rejected: invalid quantity", zap.Int64("quantity", order.Quantity))
		return wire.ReasonIncorrectQuantity, nil
	}

	exists, err := c.store.Exists(ctx, BalanceKey(order.Username))
	if err != nil {
		return wire.ReasonNone, fmt.Errorf("admit order: %w", err)
	}
	if !exists {
		c.log.Debug("order rejected: unknown user", zap.String("username", order.Username))
		return wire.ReasonUnknownAccount, nil
	}

	switch order.Kind {
	case wire.Market:
		if order.Side == wire.Sell {
			return c.reserveStock(ctx, order)
		}
		// Market buys are checked against the balance at settlement,
		// once the fill price is known.
		return wire.ReasonNone, nil
	case wire.Limit:
		if c.policy == ReserveNone {
			return wire.ReasonNone, nil
		}
		if order.Side == wire.Buy {
			return c.reserveBalance(ctx, order)
		}
		return c.reserveStock(ctx, order)
	default:
		return wire.ReasonOther, nil
	}
}

// reserveStock debits quantity from the user's position if it covers
// the order.
func (c *IntegrityChecker) reserveStock(ctx context.Context, order wire.Order) (wire.Reason, error) {
	key := StockKey(order.Username, order.Symbol)
	err := c.store.Update(ctx, key, func(ctx context.Context, r Reader) ([]Change, error) {
		position, ok, err := r.Int(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok || position < order.Quantity {
			return nil, ErrInsufficient
		}
		return []Change{IncrInt(key, -order.Quantity)}, nil
	})
	return c.outcome(err, wire.ReasonInsufficientStock, "reserve stock")
}

// reserveBalance debits the limit order's worst-case notional from the
// user's balance if it covers the order.
func (c *IntegrityChecker) reserveBalance(ctx context.Context, order wire.Order) (wire.Reason, error) {
	key := BalanceKey(order.Username)
	amount := order.Amount()
	err := c.store.Update(ctx, key, func(ctx context.Context, r Reader) ([]Change, error) {
		balance, _, err := r.Float(ctx, key)
		if err != nil {
			return nil, err
		}
		if balance < amount {
			return nil, ErrInsufficient
		}
		return []Change{IncrFloat(key, -amount)}, nil
	})
	return c.outcome(err, wire.ReasonInsufficientFunds, "reserve balance")
}

// ReplaceAdjust re-prices the reservation behind a resting limit order:
// buys move the balance by the old and new notional difference, sells
// move the position by the quantity difference. Rejected when the
// adjusted value would go negative.
func (c *IntegrityChecker) ReplaceAdjust(ctx context.Context, old, updated wire.Order) (wire.Reason, error) {
	if old.Side == wire.Buy {
		key := BalanceKey(old.Username)
		delta := old.Amount() - updated.Amount()
		err := c.store.Update(ctx, key, func(ctx context.Context, r Reader) ([]Change, error) {
			balance, _, err := r.Float(ctx, key)
			if err != nil {
				return nil, err
			}
			if balance+delta < 0 {
				return nil, ErrInsufficient
			}
			return []Change{IncrFloat(key, delta)}, nil
		})
		return c.outcome(err, wire.ReasonInsufficientFunds, "replace buy")
	}

	key := StockKey(old.Username, old.Symbol)
	delta := old.Quantity - updated.Quantity
	err := c.store.Update(ctx, key, func(ctx context.Context, r Reader) ([]Change, error) {
		position, _, err := r.Int(ctx, key)
		if err != nil {
			return nil, err
		}
		if position+delta < 0 {
			return nil, ErrInsufficient
		}
		return []Change{IncrInt(key, delta)}, nil
	})
	return c.outcome(err, wire.ReasonInsufficientStock, "replace sell")
}

// CancelAdjust releases the reservation behind a cancelled resting
// order: buys credit the balance back, sells credit the position back.
// A release only adds, so no bound check is needed.
func (c *IntegrityChecker) CancelAdjust(ctx context.Context, old wire.Order) error {
	var change Change
	if old.Side == wire.Buy {
		change = IncrFloat(BalanceKey(old.Username), old.Amount())
	} else {
		change = IncrInt(StockKey(old.Username, old.Symbol), old.Quantity)
	}
	if err := c.store.Apply(ctx, change); err != nil {
		return fmt.Errorf("cancel adjust: %w", err)
	}
	return nil
}

// SettleTrade applies the final ledger effect of an executed trade,
// dispatched exhaustively on the order's (kind, side):
//
//	market buy:  check balance covers the fill, debit it, credit position
//	market sell: credit balance (position was debited at admission)
//	limit buy:   credit position (funds were reserved at order time)
//	limit sell:  credit balance
func (c *IntegrityChecker) SettleTrade(ctx context.Context, trade wire.Trade) (wire.Reason, error) {
	order := trade.Order
	balanceKey := BalanceKey(order.Username)
	stockKey := StockKey(order.Username, trade.Symbol)
	amount := trade.Amount()

	switch {
	case order.Kind == wire.Market && order.Side == wire.Buy:
		err := c.store.Update(ctx, balanceKey, func(ctx context.Context, r Reader) ([]Change, error) {
			balance, _, err := r.Float(ctx, balanceKey)
			if err != nil {
				return nil, err
			}
			if balance < amount {
				return nil, ErrInsufficient
			}
			return []Change{
				IncrFloat(balanceKey, -amount),
				IncrInt(stockKey, trade.Quantity),
			}, nil
		})
		return c.outcome(err, wire.ReasonInsufficientFunds, "settle market buy")

	case order.Kind == wire.Market && order.Side == wire.Sell:
		return wire.ReasonNone, c.store.Apply(ctx, IncrFloat(balanceKey, amount))

	case order.Kind == wire.Limit && order.Side == wire.Buy:
		return wire.ReasonNone, c.store.Apply(ctx, IncrInt(stockKey, trade.Quantity))

	case order.Kind == wire.Limit && order.Side == wire.Sell:
		return wire.ReasonNone, c.store.Apply(ctx, IncrFloat(balanceKey, amount))

	default:
		c.log.Warn("trade with unknown kind/side",
			zap.String("kind", string(order.Kind)),
			zap.String("side", string(order.Side)))
		return wire.ReasonOther, nil
	}
}

// outcome folds an Update error into the caller's reject reason:
// ErrInsufficient maps to short, exhausted retries map to their own
// reason, anything else propagates as a fault.
func (c *IntegrityChecker) outcome(err error, short wire.Reason, op string) (wire.Reason, error) {
	switch {
	case err == nil:
		return wire.ReasonNone, nil
	case errors.Is(err, ErrInsufficient):
		c.log.Debug("rejected", zap.String("op", op), zap.String("reason", string(short)))
		return short, nil
	case errors.Is(err, ErrContention):
		c.log.Debug("rejected", zap.String("op", op), zap.String("reason", string(wire.ReasonContention)))
		return wire.ReasonContention, nil
	default:
		return wire.ReasonNone, fmt.Errorf("%s: %w", op, err)
	}
}
