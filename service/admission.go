// Package service contains the four pipelines of the broker core:
// order admission, market-order pricing, the order-book request
// handler with its sweep matcher, and trade settlement. Each pipeline
// is an independent consumer of its input stream; they share state
// only through the ledger store and the bus.
package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helios/ledger"
	"helios/wire"
)

// Publisher sends one record to a fixed outbound topic.
type Publisher interface {
	Send(ctx context.Context, key, value []byte) error
}

// Admission validates newly submitted orders before anything else may
// see them. Accepted market orders go to the matcher stream, accepted
// limit orders become NEW book requests, rejections go back to the
// owner.
type Admission struct {
	checker      *ledger.IntegrityChecker
	marketOrders Publisher
	bookRequests Publisher
	rejections   Publisher
	log          *zap.Logger
}

// NewAdmission wires the pipeline.
func NewAdmission(
	checker *ledger.IntegrityChecker,
	marketOrders, bookRequests, rejections Publisher,
	log *zap.Logger,
) *Admission {
	return &Admission{
		checker:      checker,
		marketOrders: marketOrders,
		bookRequests: bookRequests,
		rejections:   rejections,
		log:          log,
	}
}

// HandleOrder is the bus handler for the inbound orders stream. The
// record key is the broker-assigned order key; one is minted when the
// gateway did not provide it.
func (a *Admission) HandleOrder(ctx context.Context, key, value []byte) error {
	order, err := wire.Decode[wire.Order](value)
	if err != nil {
		a.log.Warn("dropping undecodable order", zap.Error(err))
		return nil
	}

	reason, err := a.checker.AdmitOrder(ctx, order)
	if err != nil {
		return err
	}
	if reason != wire.ReasonNone {
		return a.reject(ctx, key, order, reason)
	}

	orderKey := string(key)
	if orderKey == "" {
		orderKey = uuid.NewString()
	}

	if order.Kind == wire.Market {
		payload, err := wire.Encode(order)
		if err != nil {
			return err
		}
		return a.marketOrders.Send(ctx, []byte(orderKey), payload)
	}

	req := wire.OrderBookRequest{Type: wire.RequestNew, Order: order}
	payload, err := wire.Encode(req)
	if err != nil {
		return err
	}
	return a.bookRequests.Send(ctx, []byte(orderKey), payload)
}

func (a *Admission) reject(ctx context.Context, key []byte, order wire.Order, reason wire.Reason) error {
	a.log.Debug("order rejected",
		zap.String("username", order.Username),
		zap.String("clOrderId", order.ClOrderID),
		zap.String("reason", string(reason)))
	payload, err := wire.Encode(wire.RejectedOrder{Order: order, Reason: reason})
	if err != nil {
		return err
	}
	return a.rejections.Send(ctx, key, payload)
}
