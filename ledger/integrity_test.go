package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helios/ledger"
	"helios/ledger/ledgertest"
	"helios/symbols"
	"helios/wire"
)

func newChecker(t *testing.T, policy ledger.ReservationPolicy) (*ledger.IntegrityChecker, *ledgertest.Store) {
	t.Helper()
	store := ledgertest.New()
	syms := symbols.NewStatic([]string{"AAPL", "GOOGL"})
	return ledger.NewIntegrityChecker(store, syms, policy, zap.NewNop()), store
}

func order(kind wire.Kind, side wire.Side, qty int64, price float64) wire.Order {
	return wire.Order{
		Username: "alice",
		Symbol:   "AAPL",
		Quantity: qty,
		Side:     side,
		Kind:     kind,
		Price:    price,
	}
}

func TestAdmitOrderStructuralRejects(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 1000)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*wire.Order)
		want   wire.Reason
	}{
		{"empty username", func(o *wire.Order) { o.Username = "" }, wire.ReasonUnknownAccount},
		{"unknown symbol", func(o *wire.Order) { o.Symbol = "NOPE" }, wire.ReasonUnknownSymbol},
		{"empty symbol", func(o *wire.Order) { o.Symbol = "" }, wire.ReasonUnknownSymbol},
		{"zero quantity", func(o *wire.Order) { o.Quantity = 0 }, wire.ReasonIncorrectQuantity},
		{"negative quantity", func(o *wire.Order) { o.Quantity = -5 }, wire.ReasonIncorrectQuantity},
		{"unknown account", func(o *wire.Order) { o.Username = "mallory" }, wire.ReasonUnknownAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := order(wire.Limit, wire.Buy, 10, 80)
			tc.mutate(&o)
			reason, err := checker.AdmitOrder(ctx, o)
			require.NoError(t, err)
			assert.Equal(t, tc.want, reason)
		})
	}
}

func TestAdmitMarketSellReservesStock(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 0)
	store.SetInt(ledger.StockKey("alice", "AAPL"), 10)
	ctx := context.Background()

	reason, err := checker.AdmitOrder(ctx, order(wire.Market, wire.Sell, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 0, store.IntVal(ledger.StockKey("alice", "AAPL")))
}

func TestAdmitMarketSellInsufficientPosition(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 0)
	store.SetInt(ledger.StockKey("alice", "AAPL"), 9)
	ctx := context.Background()

	reason, err := checker.AdmitOrder(ctx, order(wire.Market, wire.Sell, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonInsufficientStock, reason)
	assert.EqualValues(t, 9, store.IntVal(ledger.StockKey("alice", "AAPL")),
		"a rejected reservation must not touch the position")
}

func TestAdmitMarketBuySkipsReservation(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 5)
	ctx := context.Background()

	// No fill price exists yet, so nothing can be reserved; the balance
	// check happens at settlement.
	reason, err := checker.AdmitOrder(ctx, order(wire.Market, wire.Buy, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 5, store.FloatVal(ledger.BalanceKey("alice")))
}

func TestAdmitLimitBuyReservesNotional(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 1000)
	ctx := context.Background()

	reason, err := checker.AdmitOrder(ctx, order(wire.Limit, wire.Buy, 10, 80))
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 200, store.FloatVal(ledger.BalanceKey("alice")))

	reason, err = checker.AdmitOrder(ctx, order(wire.Limit, wire.Buy, 10, 80))
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonInsufficientFunds, reason)
	assert.EqualValues(t, 200, store.FloatVal(ledger.BalanceKey("alice")))
}

func TestAdmitLimitUnderReserveNone(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveNone)
	store.SetFloat(ledger.BalanceKey("alice"), 100)
	ctx := context.Background()

	reason, err := checker.AdmitOrder(ctx, order(wire.Limit, wire.Buy, 1000, 80))
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 100, store.FloatVal(ledger.BalanceKey("alice")),
		"ReserveNone must not touch the ledger at admission")
}

func TestReplaceAdjustBuy(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	// 1600 is reserved for 20@80; shrinking to 10@80 releases the 800
	// difference even when the free balance is currently zero.
	store.SetFloat(ledger.BalanceKey("alice"), 0)
	ctx := context.Background()

	old := order(wire.Limit, wire.Buy, 20, 80)
	updated := order(wire.Limit, wire.Buy, 10, 80)
	reason, err := checker.ReplaceAdjust(ctx, old, updated)
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 800, store.FloatVal(ledger.BalanceKey("alice")),
		"shrinking the order releases the freed notional")
}

func TestReplaceAdjustBuyInsufficient(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 100)
	ctx := context.Background()

	old := order(wire.Limit, wire.Buy, 10, 80)
	updated := order(wire.Limit, wire.Buy, 20, 80)
	reason, err := checker.ReplaceAdjust(ctx, old, updated)
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonInsufficientFunds, reason)
	assert.EqualValues(t, 100, store.FloatVal(ledger.BalanceKey("alice")),
		"a rejected replace must leave the balance untouched")
}

func TestReplaceAdjustSell(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetInt(ledger.StockKey("alice", "AAPL"), 0)
	ctx := context.Background()

	old := order(wire.Limit, wire.Sell, 20, 80)
	updated := order(wire.Limit, wire.Sell, 5, 80)
	reason, err := checker.ReplaceAdjust(ctx, old, updated)
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 15, store.IntVal(ledger.StockKey("alice", "AAPL")))
}

func TestCancelAdjustReleasesReservation(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 0)
	store.SetInt(ledger.StockKey("alice", "AAPL"), 10)
	ctx := context.Background()

	require.NoError(t, checker.CancelAdjust(ctx, order(wire.Limit, wire.Buy, 10, 80)))
	assert.EqualValues(t, 800, store.FloatVal(ledger.BalanceKey("alice")))

	require.NoError(t, checker.CancelAdjust(ctx, order(wire.Limit, wire.Sell, 20, 0)))
	assert.EqualValues(t, 30, store.IntVal(ledger.StockKey("alice", "AAPL")))
}

func TestSettleMarketBuy(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 10000)
	ctx := context.Background()

	trade := wire.Trade{
		Order:    order(wire.Market, wire.Buy, 10, 0),
		Symbol:   "AAPL",
		Price:    100,
		Quantity: 10,
	}
	reason, err := checker.SettleTrade(ctx, trade)
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 9000, store.FloatVal(ledger.BalanceKey("alice")))
	assert.EqualValues(t, 10, store.IntVal(ledger.StockKey("alice", "AAPL")))
}

func TestSettleMarketBuyInsufficientFunds(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	store.SetFloat(ledger.BalanceKey("alice"), 500)
	ctx := context.Background()

	trade := wire.Trade{
		Order:    order(wire.Market, wire.Buy, 10, 0),
		Symbol:   "AAPL",
		Price:    100,
		Quantity: 10,
	}
	reason, err := checker.SettleTrade(ctx, trade)
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonInsufficientFunds, reason)
	assert.EqualValues(t, 500, store.FloatVal(ledger.BalanceKey("alice")),
		"failed settlement must leave both keys untouched")
	assert.EqualValues(t, 0, store.IntVal(ledger.StockKey("alice", "AAPL")))
}

func TestSettleUnconditionalCredits(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		ord  wire.Order
		// expected deltas
		balance  float64
		position int64
	}{
		{"market sell", order(wire.Market, wire.Sell, 10, 0), 1000, 0},
		{"limit buy", order(wire.Limit, wire.Buy, 10, 100), 0, 10},
		{"limit sell", order(wire.Limit, wire.Sell, 10, 100), 1000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker, store := newChecker(t, ledger.ReserveOnAdmit)
			trade := wire.Trade{Order: tc.ord, Symbol: "AAPL", Price: 100, Quantity: 10}
			reason, err := checker.SettleTrade(ctx, trade)
			require.NoError(t, err)
			assert.Equal(t, wire.ReasonNone, reason)
			assert.EqualValues(t, tc.balance, store.FloatVal(ledger.BalanceKey("alice")))
			assert.EqualValues(t, tc.position, store.IntVal(ledger.StockKey("alice", "AAPL")))
		})
	}
}

func TestUpdateRetriesThroughTransientConflicts(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	key := ledger.BalanceKey("alice")
	store.SetFloat(key, 1000)
	store.ConflictNext(key, 3)
	ctx := context.Background()

	reason, err := checker.AdmitOrder(ctx, order(wire.Limit, wire.Buy, 10, 80))
	require.NoError(t, err)
	assert.Equal(t, wire.ReasonNone, reason)
	assert.EqualValues(t, 200, store.FloatVal(key))
}

func TestUpdateExhaustedConflictsRejectAsContention(t *testing.T) {
	checker, store := newChecker(t, ledger.ReserveOnAdmit)
	key := ledger.BalanceKey("alice")
	store.SetFloat(key, 1000)
	store.ConflictNext(key, ledger.MaxAttempts)
	ctx := context.Background()

	reason, err := checker.AdmitOrder(ctx, order(wire.Limit, wire.Buy, 10, 80))
	require.NoError(t, err, "contention is a rejection, not a fault")
	assert.Equal(t, wire.ReasonContention, reason)
	assert.EqualValues(t, 1000, store.FloatVal(key))
}
