// Command reconciler sweeps withdrawals stuck between reservation and
// submission (e.g. after a crash or a lost node response). Run it from cron
// or the platform scheduler; the engine itself owns no timer.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	cashout "github.com/cryptolatam/cashout"
	"github.com/cryptolatam/cashout/config"
	"github.com/cryptolatam/cashout/ledger"
	"github.com/cryptolatam/cashout/settlement"
	"github.com/cryptolatam/cashout/withdraw"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg := config.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "cashout-reconciler").Logger()

	var store ledger.Store
	db, err := cashout.OpenDB(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatal(err)
	}
	if db != nil {
		store = ledger.NewPGStore(db)
	} else {
		store = ledger.NewFileStore(cfg.DataDir)
	}

	node := settlement.NewClient(cfg.NodeRPCURL, cfg.NodeAPIKey)
	eng := withdraw.New(cfg, store, node, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	report, err := eng.ReconcileStuck(ctx, time.Duration(cfg.ReconcileAge)*time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("reconcile: scanned=%d released=%d polled=%d", report.Scanned, report.Released, report.Polled)
}
