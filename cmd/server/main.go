package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	cashout "github.com/cryptolatam/cashout"
	"github.com/cryptolatam/cashout/config"
	"github.com/cryptolatam/cashout/ledger"
	"github.com/cryptolatam/cashout/server"
	"github.com/cryptolatam/cashout/settlement"
	"github.com/cryptolatam/cashout/withdraw"
)

func main() {
	// Load .env so DATABASE_URL and wallet config are set.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg := config.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "cashout").Logger()

	var store ledger.Store
	db, err := cashout.OpenDB(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatal(err)
	}
	if db != nil {
		store = ledger.NewPGStore(db)
	} else {
		store = ledger.NewFileStore(cfg.DataDir)
		logger.Warn().Str("data_dir", cfg.DataDir).Msg("DATABASE_URL unset, using JSON file store")
	}

	node := settlement.NewClient(cfg.NodeRPCURL, cfg.NodeAPIKey)
	eng := withdraw.New(cfg, store, node, logger)
	srv := server.New(cfg, eng, node)
	if err := srv.Run(); err != nil {
		log.Fatal(err)
	}
}
