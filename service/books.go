package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"helios/domain/orderbook"
	"helios/ledger"
	"helios/wire"
)

// Books turns inbound NEW/CANCEL/REPLACE requests into book mutations
// and sweep-matches books against market ticks. The request handler
// and the tick handler are the only two writers of any book, and they
// serialize on the service mutex: the book's trees are not built for
// concurrent mutation.
type Books struct {
	catalog    *orderbook.Catalog
	checker    *ledger.IntegrityChecker
	trades     Publisher
	responses  Publisher
	rejections Publisher
	log        *zap.Logger

	mu sync.Mutex
}

// NewBooks wires the pipeline.
func NewBooks(
	catalog *orderbook.Catalog,
	checker *ledger.IntegrityChecker,
	trades, responses, rejections Publisher,
	log *zap.Logger,
) *Books {
	return &Books{
		catalog:    catalog,
		checker:    checker,
		trades:     trades,
		responses:  responses,
		rejections: rejections,
		log:        log,
	}
}

// HandleRequest is the bus handler for the book-request stream. The
// record key is the broker-assigned order key.
func (b *Books) HandleRequest(ctx context.Context, key, value []byte) error {
	req, err := wire.Decode[wire.OrderBookRequest](value)
	if err != nil {
		b.log.Warn("dropping undecodable book request", zap.Error(err))
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	orderKey := string(key)
	book := b.catalog.Book(req.Order.Symbol)

	switch req.Type {
	case wire.RequestNew:
		book.AddOrder(orderKey, req.Order)
		return b.respond(ctx, key, req)

	case wire.RequestCancel:
		old, ok := book.GetOrder(orderKey)
		if !ok {
			return b.refuse(ctx, key, req, wire.ReasonUnknownOrder)
		}
		if old.ClOrderID != req.OrigClOrderID {
			return b.refuse(ctx, key, req, wire.ReasonIDMismatch)
		}
		if err := b.checker.CancelAdjust(ctx, old); err != nil {
			return err
		}
		book.RemoveOrder(orderKey)
		return b.respond(ctx, key, req)

	case wire.RequestReplace:
		old, ok := book.GetOrder(orderKey)
		if !ok {
			return b.refuse(ctx, key, req, wire.ReasonUnknownOrder)
		}
		if old.ClOrderID != req.OrigClOrderID {
			return b.refuse(ctx, key, req, wire.ReasonIDMismatch)
		}
		if old.Side != req.Order.Side || old.Kind != req.Order.Kind {
			return b.refuse(ctx, key, req, wire.ReasonImmutableField)
		}
		reason, err := b.checker.ReplaceAdjust(ctx, old, req.Order)
		if err != nil {
			return err
		}
		if reason != wire.ReasonNone {
			// Book unchanged: the new reservation did not fit.
			return b.refuse(ctx, key, req, reason)
		}
		book.ReplaceOrder(orderKey, req.Order)
		return b.respond(ctx, key, req)

	default:
		return b.refuse(ctx, key, req, wire.ReasonOther)
	}
}

// HandleTick is the bus handler for the market-data stream. A tick for
// a symbol without a live book is dropped.
func (b *Books) HandleTick(ctx context.Context, _ []byte, value []byte) error {
	tick, err := wire.Decode[wire.MarketDataTick](value)
	if err != nil {
		b.log.Warn("dropping undecodable tick", zap.Error(err))
		return nil
	}

	book, ok := b.catalog.Lookup(tick.Symbol)
	if !ok {
		return nil
	}

	b.mu.Lock()
	trades := book.SweepMatch(tick.Low, tick.High)
	b.mu.Unlock()

	for orderKey, trade := range trades {
		payload, err := wire.Encode(trade)
		if err != nil {
			return err
		}
		if err := b.trades.Send(ctx, []byte(orderKey), payload); err != nil {
			return err
		}
	}
	return nil
}

func (b *Books) respond(ctx context.Context, key []byte, req wire.OrderBookRequest) error {
	payload, err := wire.Encode(wire.OrderBookResponse{Request: req})
	if err != nil {
		return err
	}
	return b.responses.Send(ctx, key, payload)
}

func (b *Books) refuse(ctx context.Context, key []byte, req wire.OrderBookRequest, reason wire.Reason) error {
	b.log.Debug("book request refused",
		zap.String("type", string(req.Type)),
		zap.String("symbol", req.Order.Symbol),
		zap.String("reason", string(reason)))
	payload, err := wire.Encode(wire.OrderBookRejected{Request: req, Reason: reason})
	if err != nil {
		return err
	}
	return b.rejections.Send(ctx, key, payload)
}
