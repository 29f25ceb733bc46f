package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/config"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/fulfillment"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/httpx"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/inventory"
	kafkax "github.com/shahruladnn-prog/rudark-web-sub000/internal/kafka"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/payment"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/pos"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/postgres"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/redisx"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/shipping"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per lifecycle topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	pPaid.Start(ctx)
	pFulfilled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderFulfilled, 1024)
	pFulfilled.Start(ctx)
	pReady := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderReadyToShip, 1024)
	pReady.Start(ctx)
	pShipped := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderShipped, 1024)
	pShipped.Start(ctx)
	producers := []*kafkax.Producer{pCreated, pPaid, pFulfilled, pReady, pShipped}

	// Core services
	repo := &orders.Repo{DB: db}
	inv := inventory.NewService(&inventory.PGLedger{DB: db})
	sweeper := &inventory.Sweeper{Inventory: inv, Orders: repo}

	posClient := pos.NewClient(cfg.POSBaseURL, cfg.POSAPIKey)
	syncer := &pos.Syncer{API: posClient}
	carrier := shipping.NewClient(cfg.CarrierBaseURL, cfg.CarrierAPIKey)
	tracking := &shipping.Tracking{
		API:        carrier,
		Orders:     repo,
		Policy:     shipping.DefaultTrackingPolicy(),
		BatchDelay: cfg.TrackingBatchDelay,
	}
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)

	pipeline := &fulfillment.Pipeline{
		Inventory:   inv,
		Orders:      repo,
		POS:         syncer,
		Carrier:     carrier,
		Tracking:    tracking,
		Producer:    pFulfilled,
		ReadyToShip: pReady,
		ServiceName: cfg.ServiceName,
	}
	verifier := &payment.Verifier{
		Gateway:     gateway,
		Orders:      repo,
		Pipeline:    pipeline,
		Producer:    pPaid,
		ServiceName: cfg.ServiceName,
	}

	// Router & handlers
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Repo:           repo,
		Inventory:      inv,
		Gateway:        gateway,
		Verifier:       verifier,
		Pipeline:       pipeline,
		Producer:       pCreated,
		Redis:          rdb,
		Service:        cfg.ServiceName,
		ReservationTTL: cfg.ReservationTTL,
	}
	oh.Register(router)
	sh := &httpx.StockHandler{Inventory: inv, Sweeper: sweeper, Repo: repo}
	sh.Register(router)
	sph := &httpx.ShippingHandler{
		Carrier:  carrier,
		Tracking: tracking,
		Repo:     repo,
		Producer: pShipped,
		Service:  cfg.ServiceName,
	}
	sph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // close inbox -> flush & close writer
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed() // drain
	}
}
