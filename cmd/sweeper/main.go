package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/config"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/inventory"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/postgres"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/shipping"
)

// One-shot operator job: release expired checkout holds, then resolve any
// pending tracking numbers. Run from cron or by hand; there is no resident
// background process.
func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	repo := &orders.Repo{DB: db}
	inv := inventory.NewService(&inventory.PGLedger{DB: db})
	sweeper := &inventory.Sweeper{Inventory: inv, Orders: repo}

	rep, err := sweeper.Sweep(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep failed")
	}
	log.Info().Int("scanned", rep.Scanned).Int("released", rep.Released).Int("failed", rep.Failed).
		Msg("reservation sweep done")

	tracking := &shipping.Tracking{
		API:        shipping.NewClient(cfg.CarrierBaseURL, cfg.CarrierAPIKey),
		Orders:     repo,
		Policy:     shipping.DefaultTrackingPolicy(),
		BatchDelay: cfg.TrackingBatchDelay,
	}
	brep, err := tracking.BatchSync(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("batch tracking sync failed")
	}
	log.Info().Int("scanned", brep.Scanned).Int("resolved", brep.Resolved).
		Int("pending", brep.Pending).Int("failed", brep.Failed).
		Msg("tracking sync done")
}
