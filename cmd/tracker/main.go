package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/config"
	kafkax "github.com/shahruladnn-prog/rudark-web-sub000/internal/kafka"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/postgres"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/redisx"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/shipping"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

// The tracker consumes ready-to-ship events and asks the carrier for the
// tracking number the shipment checkout left pending. Orders it cannot
// resolve yet stay tracking_synced=false for the batch sync to pick up.
func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	repo := &orders.Repo{DB: db}
	tracking := &shipping.Tracking{
		API:        shipping.NewClient(cfg.CarrierBaseURL, cfg.CarrierAPIKey),
		Orders:     repo,
		Policy:     shipping.DefaultTrackingPolicy(),
		BatchDelay: cfg.TrackingBatchDelay,
	}

	handler := func(ctx context.Context, m kafkago.Message) error {
		var env orders.Envelope
		if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
			return err
		}
		if env.EventType != orders.EventOrderReadyToShip {
			return nil
		}

		// dedup by event_id so redeliveries do not hammer the carrier
		dkey := fmt.Sprintf(redisx.KeyDedup, "tracker", env.EventID)
		if seen, _ := redisx.Exists(ctx, rdb, dkey); seen {
			return nil
		}
		_ = rdb.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

		p, err := kafkax.UnwrapPayload[orders.OrderReadyToShipPayload](env.Payload)
		if err != nil {
			return err
		}
		fr, err := tracking.SyncOrder(ctx, p.OrderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", p.OrderID).Msg("tracking sync failed")
			return nil // leave for batch sync, do not redeliver forever
		}
		if fr.TrackingNo == "" {
			log.Info().Str("order_id", p.OrderID).Msg("tracking still pending")
		}
		return nil
	}

	group := getenv("TRACKER_GROUP", "tracker-svc")
	workers := mustAtoi(os.Getenv("TRACKER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderReadyToShip, workers)

	go func() {
		log.Info().Str("group", group).Str("topic", orders.TopicOrderReadyToShip).Int("workers", workers).
			Msg("tracker consumer started")
		if err := cons.Start(ctx, handler); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down consumer...")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
