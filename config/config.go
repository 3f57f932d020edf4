package config

import (
	"os"
	"strconv"

	"github.com/cryptolatam/cashout/ton"
)

type Config struct {
	Port              int
	DataDir           string
	DatabaseURL       string // empty = JSON file store
	DBMaxConns        int
	Network           string // "mainnet" or "testnet"
	NodeRPCURL        string
	NodeAPIKey        string
	HouseWallet       string // source wallet withdrawals are sent from
	MinWithdrawal     int64  // nanotons
	WithdrawalFee     int64  // nanotons, fixed per withdrawal
	ApprovalThreshold int64  // nanotons; 0 disables manual approval
	MaxRetryAttempts  int
	ReconcileAge      int // minutes before a stuck pending row is swept
	OperatorEndpoint  string
	OperatorSecret    string
	AdminToken        string
	MaintenanceMode   bool
}

func Load() *Config {
	port := 8082
	// Prefer PORT (Render, Fly.io, Railway, etc.) then CASHOUT_PORT
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	} else if p := os.Getenv("CASHOUT_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	}
	dataDir := os.Getenv("CASHOUT_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	network := os.Getenv("TON_NETWORK")
	if network != "mainnet" && network != "testnet" {
		network = "testnet"
	}
	nodeURL := os.Getenv("NODE_RPC_URL")
	if nodeURL == "" {
		nodeURL = "http://localhost:8550"
	}
	return &Config{
		Port:              port,
		DataDir:           dataDir,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        envInt("CASHOUT_DB_MAX_CONNS", 10),
		Network:           network,
		NodeRPCURL:        nodeURL,
		NodeAPIKey:        os.Getenv("NODE_API_KEY"),
		HouseWallet:       os.Getenv("HOUSE_WALLET"),
		MinWithdrawal:     envAmount("MIN_WITHDRAWAL", "0.1"),
		WithdrawalFee:     envAmount("WITHDRAWAL_FEE", "0.0001"),
		ApprovalThreshold: envAmount("APPROVAL_THRESHOLD", "0"),
		MaxRetryAttempts:  envInt("MAX_RETRY_ATTEMPTS", 3),
		ReconcileAge:      envInt("RECONCILE_AGE_MINUTES", 30),
		OperatorEndpoint:  os.Getenv("OPERATOR_ENDPOINT"),
		OperatorSecret:    os.Getenv("OPERATOR_SECRET"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		MaintenanceMode:   os.Getenv("MAINTENANCE_MODE") == "1" || os.Getenv("MAINTENANCE_MODE") == "true",
	}
}

// envAmount reads a decimal TON env var into nanotons, falling back on parse failure.
func envAmount(key, fallback string) int64 {
	if s := os.Getenv(key); s != "" {
		if v, err := ton.Parse(s); err == nil {
			return v
		}
	}
	v, _ := ton.Parse(fallback)
	return v
}

func envInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return fallback
}
