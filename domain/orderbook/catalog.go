package orderbook

import (
	"sync"

	"go.uber.org/zap"
)

// Catalog owns every live book, one per symbol, created lazily on first
// reference. It is the only registry of books; nothing else holds a
// symbol-to-book mapping.
type Catalog struct {
	mu    sync.Mutex
	books map[string]*LimitOrderBook
	log   *zap.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(log *zap.Logger) *Catalog {
	return &Catalog{
		books: make(map[string]*LimitOrderBook),
		log:   log,
	}
}

// Book returns the book for symbol, creating it if absent.
func (c *Catalog) Book(symbol string) *LimitOrderBook {
	c.mu.Lock()
	defer c.mu.Unlock()
	book, ok := c.books[symbol]
	if !ok {
		book = NewLimitOrderBook(symbol, c.log)
		c.books[symbol] = book
		c.log.Debug("order book created", zap.String("symbol", symbol))
	}
	return book
}

// Lookup returns the book for symbol without creating one. Ticks for a
// symbol nobody has an order on are dropped by the caller.
func (c *Catalog) Lookup(symbol string) (*LimitOrderBook, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	book, ok := c.books[symbol]
	return book, ok
}

// Size is the number of live books.
func (c *Catalog) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.books)
}
