// Package wire defines the message-bus payloads exchanged between the
// broker pipelines. Every message rides Kafka as JSON; the record key
// carries the broker-assigned order key where one exists.
package wire

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Kind of an order.
type Kind string

const (
	Market Kind = "MARKET"
	Limit  Kind = "LIMIT"
)

// RequestType discriminates order-book requests.
type RequestType string

const (
	RequestNew     RequestType = "NEW"
	RequestCancel  RequestType = "CANCEL"
	RequestReplace RequestType = "REPLACE"
)

// Reason explains why an order, trade or book request was rejected.
// The zero value means "not rejected".
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonUnknownSymbol     Reason = "UNKNOWN_SYMBOL"
	ReasonUnknownAccount    Reason = "UNKNOWN_ACCOUNT"
	ReasonIncorrectQuantity Reason = "INCORRECT_QUANTITY"
	ReasonInsufficientFunds Reason = "INSUFFICIENT_FUNDS"
	ReasonInsufficientStock Reason = "INSUFFICIENT_STOCK"
	ReasonContention        Reason = "CONTENTION_EXHAUSTED"
	ReasonUnknownOrder      Reason = "UNKNOWN_ORDER"
	ReasonIDMismatch        Reason = "ORIG_CL_ORDER_ID_MISMATCH"
	ReasonImmutableField    Reason = "IMMUTABLE_FIELD_CHANGED"
	ReasonNoMarketData      Reason = "NO_MARKET_DATA"
	ReasonOther             Reason = "OTHER"
)

// Order is an immutable client order. Price is meaningful only for limit
// orders. ClOrderID is the client's id for this order lifecycle; the
// broker-assigned order key travels as the Kafka record key.
type Order struct {
	Username  string  `json:"username"`
	Symbol    string  `json:"symbol"`
	Quantity  int64   `json:"quantity"`
	Side      Side    `json:"side"`
	Kind      Kind    `json:"kind"`
	Price     float64 `json:"price,omitempty"`
	ClOrderID string  `json:"clOrderId"`
}

// Amount is the order's worst-case notional, price times quantity.
func (o Order) Amount() float64 {
	return o.Price * float64(o.Quantity)
}

// OrderBookRequest asks the book handler to add, cancel or replace the
// resting order identified by the record key. OrigClOrderID references
// the client id of the order being cancelled or replaced.
type OrderBookRequest struct {
	Type          RequestType `json:"type"`
	Order         Order       `json:"order"`
	OrigClOrderID string      `json:"origClOrderId,omitempty"`
}

// MarketDataTick is an OHLCV summary for one symbol over one interval.
type MarketDataTick struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Trade is an execution of an order at a fill price.
type Trade struct {
	Order    Order   `json:"order"`
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// Amount is the trade's settled notional, fill price times quantity.
func (t Trade) Amount() float64 {
	return t.Price * float64(t.Quantity)
}

// RejectedOrder reports a terminal rejection back to the order's owner.
type RejectedOrder struct {
	Order  Order  `json:"order"`
	Reason Reason `json:"reason"`
}

// OrderBookResponse acknowledges an accepted book request.
type OrderBookResponse struct {
	Request OrderBookRequest `json:"request"`
}

// OrderBookRejected echoes a refused book request with the refusal reason.
type OrderBookRejected struct {
	Request OrderBookRequest `json:"request"`
	Reason  Reason           `json:"reason"`
}
