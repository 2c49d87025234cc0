package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helios/service"
	"helios/wire"
)

func TestMatcherPricesAtLatestClose(t *testing.T) {
	trades := &fakeTopic{}
	rejections := &fakeTopic{}
	m := service.NewMatcher(trades, rejections, zap.NewNop())
	ctx := context.Background()

	tick := wire.MarketDataTick{Symbol: "AAPL", Open: 100, High: 105, Low: 99, Close: 103, Volume: 1000}
	require.NoError(t, m.HandleTick(ctx, nil, encode(tick)))

	order := wire.Order{Username: "alice", Symbol: "AAPL", Quantity: 7, Side: wire.Buy, Kind: wire.Market}
	require.NoError(t, m.HandleOrder(ctx, []byte("k1"), encode(order)))

	assert.Empty(t, rejections.payloads)
	require.Len(t, trades.payloads, 1)
	assert.Equal(t, "k1", trades.keys[0])

	trade, err := wire.Decode[wire.Trade](trades.last())
	require.NoError(t, err)
	assert.Equal(t, 103.0, trade.Price, "market orders fill at the latest tick close")
	assert.EqualValues(t, 7, trade.Quantity)
	assert.Equal(t, order, trade.Order)
}

func TestMatcherUsesFreshestTick(t *testing.T) {
	trades := &fakeTopic{}
	m := service.NewMatcher(trades, &fakeTopic{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.HandleTick(ctx, nil, encode(wire.MarketDataTick{Symbol: "AAPL", Close: 100})))
	require.NoError(t, m.HandleTick(ctx, nil, encode(wire.MarketDataTick{Symbol: "AAPL", Close: 110})))

	order := wire.Order{Username: "alice", Symbol: "AAPL", Quantity: 1, Side: wire.Sell, Kind: wire.Market}
	require.NoError(t, m.HandleOrder(ctx, []byte("k1"), encode(order)))

	trade, err := wire.Decode[wire.Trade](trades.last())
	require.NoError(t, err)
	assert.Equal(t, 110.0, trade.Price)
}

func TestMatcherRejectsWithoutMarketData(t *testing.T) {
	trades := &fakeTopic{}
	rejections := &fakeTopic{}
	m := service.NewMatcher(trades, rejections, zap.NewNop())
	ctx := context.Background()

	// A tick for another symbol does not help.
	require.NoError(t, m.HandleTick(ctx, nil, encode(wire.MarketDataTick{Symbol: "GOOGL", Close: 100})))

	order := wire.Order{Username: "alice", Symbol: "AAPL", Quantity: 1, Side: wire.Buy, Kind: wire.Market}
	require.NoError(t, m.HandleOrder(ctx, []byte("k1"), encode(order)))

	assert.Empty(t, trades.payloads)
	require.Len(t, rejections.payloads, 1)

	rej, err := wire.Decode[wire.RejectedOrder](rejections.last())
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNoMarketData, rej.Reason)
}
