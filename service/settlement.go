package service

import (
	"context"

	"go.uber.org/zap"

	"helios/ledger"
	"helios/wire"
)

// ResultSink stores pipeline results for at-least-once publication;
// the outbox implements it.
type ResultSink interface {
	Append(topic, key string, payload []byte) (uint64, error)
}

// Settlement applies the final ledger effect of executed trades.
// Results go through the outbox rather than straight to the bus so a
// crash after the ledger commit cannot lose the report.
type Settlement struct {
	checker       *ledger.IntegrityChecker
	sink          ResultSink
	acceptedTopic string
	rejectedTopic string
	log           *zap.Logger
}

// NewSettlement wires the pipeline.
func NewSettlement(
	checker *ledger.IntegrityChecker,
	sink ResultSink,
	acceptedTopic, rejectedTopic string,
	log *zap.Logger,
) *Settlement {
	return &Settlement{
		checker:       checker,
		sink:          sink,
		acceptedTopic: acceptedTopic,
		rejectedTopic: rejectedTopic,
		log:           log,
	}
}

// HandleTrade is the bus handler for the trades stream.
func (s *Settlement) HandleTrade(ctx context.Context, key, value []byte) error {
	trade, err := wire.Decode[wire.Trade](value)
	if err != nil {
		s.log.Warn("dropping undecodable trade", zap.Error(err))
		return nil
	}

	reason, err := s.checker.SettleTrade(ctx, trade)
	if err != nil {
		return err
	}

	if reason == wire.ReasonNone {
		s.log.Debug("trade settled",
			zap.String("symbol", trade.Symbol),
			zap.Float64("price", trade.Price),
			zap.Int64("quantity", trade.Quantity))
		payload, err := wire.Encode(trade)
		if err != nil {
			return err
		}
		_, err = s.sink.Append(s.acceptedTopic, string(key), payload)
		return err
	}

	s.log.Debug("trade rejected",
		zap.String("symbol", trade.Symbol),
		zap.String("reason", string(reason)))
	payload, err := wire.Encode(wire.RejectedOrder{Order: trade.Order, Reason: reason})
	if err != nil {
		return err
	}
	_, err = s.sink.Append(s.rejectedTopic, string(key), payload)
	return err
}
