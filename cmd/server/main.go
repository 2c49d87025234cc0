package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"helios/config"
	"helios/domain/orderbook"
	"helios/infra/kafka"
	"helios/infra/outbox"
	"helios/infra/redisledger"
	"helios/jobs/broadcaster"
	"helios/ledger"
	"helios/service"
	"helios/symbols"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.LoadFromEnv("")

	// ---------------- Ledger ----------------

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := redisledger.New(rdb, log)

	policy := ledger.ReserveOnAdmit
	if !cfg.ReserveOnAdmit {
		policy = ledger.ReserveNone
	}
	syms := symbols.NewStatic(cfg.Symbols)
	checker := ledger.NewIntegrityChecker(store, syms, policy, log)

	// ---------------- Outbox ----------------

	out, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatal("outbox init failed", zap.Error(err))
	}
	defer out.Close()

	// ---------------- Producers ----------------

	brokers := cfg.Kafka.Brokers
	topics := cfg.Kafka.Topics

	marketOrders := kafka.NewProducer(brokers, topics.MarketOrders)
	bookRequests := kafka.NewProducer(brokers, topics.BookRequests)
	bookResponses := kafka.NewProducer(brokers, topics.BookResponses)
	bookRejections := kafka.NewProducer(brokers, topics.BookRejections)
	trades := kafka.NewProducer(brokers, topics.Trades)
	rejections := kafka.NewProducer(brokers, topics.RejectedOrders)
	defer func() {
		for _, p := range []*kafka.Producer{
			marketOrders, bookRequests, bookResponses,
			bookRejections, trades, rejections,
		} {
			p.Close()
		}
	}()

	// ---------------- Services ----------------

	admission := service.NewAdmission(checker, marketOrders, bookRequests, rejections, log)
	matcher := service.NewMatcher(trades, rejections, log)
	books := service.NewBooks(orderbook.NewCatalog(log), checker, trades, bookResponses, bookRejections, log)
	settlement := service.NewSettlement(checker, out, topics.AcceptedTrades, topics.RejectedOrders, log)

	// ---------------- Consumers ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 8)
	run := func(group, topic string, handle kafka.Handler) {
		c := kafka.NewConsumer(brokers, group, topic, log)
		go func() {
			errs <- c.Run(ctx, handle)
		}()
	}

	run("helios-admission", topics.Orders, admission.HandleOrder)
	run("helios-matcher-orders", topics.MarketOrders, matcher.HandleOrder)
	run("helios-matcher-ticks", topics.MarketData, matcher.HandleTick)
	run("helios-books-requests", topics.BookRequests, books.HandleRequest)
	run("helios-books-ticks", topics.MarketData, books.HandleTick)
	run("helios-settlement", topics.Trades, settlement.HandleTrade)

	// ---------------- Background Jobs ----------------

	bc, err := broadcaster.New(out, brokers, cfg.BroadcastInterval, log)
	if err != nil {
		log.Fatal("broadcaster init failed", zap.Error(err))
	}
	defer bc.Close()
	go bc.Run(ctx)

	log.Info("helios core running",
		zap.Strings("brokers", brokers),
		zap.Strings("symbols", syms.All()))

	// ---------------- Shutdown ----------------

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("signal received, shutting down", zap.String("signal", s.String()))
	case err := <-errs:
		if err != nil {
			log.Error("consumer exited", zap.Error(err))
		}
	}
	cancel()
}
