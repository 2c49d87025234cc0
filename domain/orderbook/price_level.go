package orderbook

import (
	"github.com/google/btree"

	"helios/wire"
)

// PriceLevel holds every resting order at one exact limit price on one
// side of one book, keyed by broker-assigned order key. The aggregate
// volume is maintained incrementally so it always equals the sum of the
// resting quantities.
type PriceLevel struct {
	price  float64
	volume int64
	orders map[string]wire.Order
}

func newPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{
		price:  price,
		orders: make(map[string]wire.Order),
	}
}

// Less orders levels ascending by price inside a side tree.
func (l *PriceLevel) Less(than btree.Item) bool {
	return l.price < than.(*PriceLevel).price
}

func (l *PriceLevel) add(key string, order wire.Order) {
	l.orders[key] = order
	l.volume += order.Quantity
}

func (l *PriceLevel) remove(key string) (wire.Order, bool) {
	order, ok := l.orders[key]
	if !ok {
		return wire.Order{}, false
	}
	delete(l.orders, key)
	l.volume -= order.Quantity
	return order, true
}

// replace swaps the order stored under key without moving it to another
// level. The caller guarantees the new order carries the same price.
func (l *PriceLevel) replace(key string, order wire.Order) {
	old, ok := l.orders[key]
	if !ok {
		return
	}
	l.volume -= old.Quantity
	l.volume += order.Quantity
	l.orders[key] = order
}

func (l *PriceLevel) get(key string) (wire.Order, bool) {
	order, ok := l.orders[key]
	return order, ok
}

// Price is the level's exact limit price.
func (l *PriceLevel) Price() float64 { return l.price }

// Volume is the cached sum of resting quantities at this level.
func (l *PriceLevel) Volume() int64 { return l.volume }

// Size is the number of resting orders at this level.
func (l *PriceLevel) Size() int { return len(l.orders) }
