// Package config loads the process configuration. Priority: environment
// variables over a .env file over defaults.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Topics names every bus stream the core consumes or produces.
type Topics struct {
	Orders         string // inbound client orders
	MarketOrders   string // admitted market orders awaiting a price
	BookRequests   string // NEW/CANCEL/REPLACE requests
	BookResponses  string // accepted book requests
	BookRejections string // refused book requests
	Trades         string // executed trades awaiting settlement
	AcceptedTrades string // settled trades
	RejectedOrders string // terminal rejections
	MarketData     string // OHLCV ticks
}

// Kafka holds the bus connection settings.
type Kafka struct {
	Brokers []string
	Topics  Topics
}

// Config is the full process configuration.
type Config struct {
	Kafka             Kafka
	RedisAddr         string
	Symbols           []string
	OutboxDir         string
	BroadcastInterval time.Duration
	ReserveOnAdmit    bool
}

// Default returns the devnet configuration.
func Default() Config {
	return Config{
		Kafka: Kafka{
			Brokers: []string{"localhost:9092"},
			Topics: Topics{
				Orders:         "orders",
				MarketOrders:   "accepted-orders",
				BookRequests:   "order-book-request",
				BookResponses:  "order-book-response",
				BookRejections: "order-book-rejected",
				Trades:         "trades",
				AcceptedTrades: "accepted-trades",
				RejectedOrders: "rejected-orders",
				MarketData:     "market-data",
			},
		},
		RedisAddr:         "localhost:6379",
		Symbols:           []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"},
		OutboxDir:         "./outbox",
		BroadcastInterval: 250 * time.Millisecond,
		ReserveOnAdmit:    true,
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables on top of the defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Kafka.Brokers = getList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.RedisAddr = getStr("REDIS_ADDR", cfg.RedisAddr)
	cfg.Symbols = getList("SYMBOLS", cfg.Symbols)
	cfg.OutboxDir = getStr("OUTBOX_DIR", cfg.OutboxDir)
	cfg.BroadcastInterval = getDur("BROADCAST_INTERVAL", cfg.BroadcastInterval)
	cfg.ReserveOnAdmit = getBool("RESERVE_ON_ADMIT", cfg.ReserveOnAdmit)

	t := &cfg.Kafka.Topics
	t.Orders = getStr("TOPIC_ORDERS", t.Orders)
	t.MarketOrders = getStr("TOPIC_MARKET_ORDERS", t.MarketOrders)
	t.BookRequests = getStr("TOPIC_BOOK_REQUESTS", t.BookRequests)
	t.BookResponses = getStr("TOPIC_BOOK_RESPONSES", t.BookResponses)
	t.BookRejections = getStr("TOPIC_BOOK_REJECTIONS", t.BookRejections)
	t.Trades = getStr("TOPIC_TRADES", t.Trades)
	t.AcceptedTrades = getStr("TOPIC_ACCEPTED_TRADES", t.AcceptedTrades)
	t.RejectedOrders = getStr("TOPIC_REJECTED_ORDERS", t.RejectedOrders)
	t.MarketData = getStr("TOPIC_MARKET_DATA", t.MarketData)

	return cfg
}

func getStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}

func getDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}
