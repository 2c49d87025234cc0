package orderbook

import (
	"github.com/google/btree"

	"helios/wire"
)

const treeDegree = 32

// SideTree is one side of a book: price levels ordered ascending by
// price, plus a reverse index from order key to resting price for
// O(log n) cancel and replace.
//
// Invariants: a level with zero volume is removed from the tree, and
// every key in the reverse index resolves to exactly one level.
type SideTree struct {
	side   wire.Side
	levels *btree.BTree
	index  map[string]float64
}

// NewSideTree creates an empty tree for the given side.
func NewSideTree(side wire.Side) *SideTree {
	return &SideTree{
		side:   side,
		levels: btree.New(treeDegree),
		index:  make(map[string]float64),
	}
}

func (t *SideTree) level(price float64) (*PriceLevel, bool) {
	item := t.levels.Get(&PriceLevel{price: price})
	if item == nil {
		return nil, false
	}
	return item.(*PriceLevel), true
}

// Add inserts the order under key, creating its price level if absent.
func (t *SideTree) Add(key string, order wire.Order) {
	lvl, ok := t.level(order.Price)
	if !ok {
		lvl = newPriceLevel(order.Price)
		t.levels.ReplaceOrInsert(lvl)
	}
	lvl.add(key, order)
	t.index[key] = order.Price
}

// Remove deletes the order under key and destroys its level when the
// level's volume reaches zero.
func (t *SideTree) Remove(key string) (wire.Order, bool) {
	price, ok := t.index[key]
	if !ok {
		return wire.Order{}, false
	}
	lvl, ok := t.level(price)
	if !ok {
		return wire.Order{}, false
	}
	order, ok := lvl.remove(key)
	if lvl.Volume() <= 0 {
		t.levels.Delete(lvl)
	}
	delete(t.index, key)
	return order, ok
}

// Replace swaps the order stored under key for a re-priced or re-sized
// one. Same price mutates the level in place; a price change moves the
// order between levels. Returns the prior order.
func (t *SideTree) Replace(key string, order wire.Order) (wire.Order, bool) {
	oldPrice, ok := t.index[key]
	if !ok {
		return wire.Order{}, false
	}
	lvl, ok := t.level(oldPrice)
	if !ok {
		return wire.Order{}, false
	}
	old, _ := lvl.get(key)

	if oldPrice == order.Price {
		lvl.replace(key, order)
		return old, true
	}

	lvl.remove(key)
	if lvl.Volume() <= 0 {
		t.levels.Delete(lvl)
	}
	newLvl, ok := t.level(order.Price)
	if !ok {
		newLvl = newPriceLevel(order.Price)
		t.levels.ReplaceOrInsert(newLvl)
	}
	newLvl.add(key, order)
	t.index[key] = order.Price
	return old, true
}

// Get returns the resting order under key.
func (t *SideTree) Get(key string) (wire.Order, bool) {
	price, ok := t.index[key]
	if !ok {
		return wire.Order{}, false
	}
	lvl, ok := t.level(price)
	if !ok {
		return wire.Order{}, false
	}
	return lvl.get(key)
}

// Contains reports whether key rests in this tree.
func (t *SideTree) Contains(key string) bool {
	_, ok := t.index[key]
	return ok
}

// Orders returns a snapshot copy of every resting order on this side.
func (t *SideTree) Orders() map[string]wire.Order {
	out := make(map[string]wire.Order, len(t.index))
	t.levels.Ascend(func(item btree.Item) bool {
		for key, order := range item.(*PriceLevel).orders {
			out[key] = order
		}
		return true
	})
	return out
}

// TotalVolume sums the cached volume of every level.
func (t *SideTree) TotalVolume() int64 {
	var total int64
	t.levels.Ascend(func(item btree.Item) bool {
		total += item.(*PriceLevel).Volume()
		return true
	})
	return total
}

// Levels is the number of live price levels.
func (t *SideTree) Levels() int { return t.levels.Len() }

// matchAtOrAbove removes and returns every order resting at a price
// greater than or equal to bound. Whole levels match atomically.
func (t *SideTree) matchAtOrAbove(bound float64) map[string]wire.Order {
	return t.collect(func(collect func(*PriceLevel)) {
		t.levels.AscendGreaterOrEqual(&PriceLevel{price: bound}, func(item btree.Item) bool {
			collect(item.(*PriceLevel))
			return true
		})
	})
}

// matchAtOrBelow removes and returns every order resting at a price
// less than or equal to bound.
func (t *SideTree) matchAtOrBelow(bound float64) map[string]wire.Order {
	return t.collect(func(collect func(*PriceLevel)) {
		t.levels.Ascend(func(item btree.Item) bool {
			lvl := item.(*PriceLevel)
			if lvl.Price() > bound {
				return false
			}
			collect(lvl)
			return true
		})
	})
}

func (t *SideTree) collect(walk func(collect func(*PriceLevel))) map[string]wire.Order {
	matched := make(map[string]wire.Order)
	walk(func(lvl *PriceLevel) {
		for key, order := range lvl.orders {
			matched[key] = order
		}
	})
	// Removal happens after the walk; deleting levels mid-iteration
	// invalidates the btree cursor.
	for key := range matched {
		t.Remove(key)
	}
	return matched
}
