package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/cryptolatam/cashout/config"
	"github.com/cryptolatam/cashout/notify"
	"github.com/cryptolatam/cashout/settlement"
	"github.com/cryptolatam/cashout/withdraw"
)

// RateLimiter gates the public withdraw endpoints per session. The real
// implementation lives with the platform; the default allows everything.
type RateLimiter interface {
	Allow(key string) bool
}

type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

type Server struct {
	cfg     *config.Config
	engine  *withdraw.Engine
	node    settlement.Submitter
	limiter RateLimiter
}

func New(cfg *config.Config, eng *withdraw.Engine, node settlement.Submitter) *Server {
	if cfg.OperatorEndpoint != "" {
		eng.SetNotifier(operatorNotifier{notify.NewClient(cfg.OperatorEndpoint, cfg.OperatorSecret)})
	}
	return &Server{
		cfg:     cfg,
		engine:  eng,
		node:    node,
		limiter: allowAll{},
	}
}

// SetRateLimiter wires the platform's public rate limiter.
func (s *Server) SetRateLimiter(rl RateLimiter) {
	if rl != nil {
		s.limiter = rl
	}
}

// operatorNotifier adapts notify.Client to the engine's callback seam.
type operatorNotifier struct {
	c *notify.Client
}

func (n operatorNotifier) WithdrawalConfirmed(sessionID, txID, txHash, amount string) error {
	_, err := n.c.WithdrawalConfirmed(sessionID, txID, txHash, amount)
	return err
}

func (n operatorNotifier) WithdrawalFailed(sessionID, txID, reason, amount string) error {
	_, err := n.c.WithdrawalFailed(sessionID, txID, reason, amount)
	return err
}

func (s *Server) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /api/withdraw", s.handleWithdraw)
	mux.HandleFunc("GET /api/withdraw/status", s.handleWithdrawStatus)
	mux.HandleFunc("GET /api/withdrawals", s.handleWithdrawals)
	mux.HandleFunc("POST /api/deposit", s.handleDeposit)
	// Admin: manual approval gate for high-value withdrawals.
	mux.HandleFunc("POST /admin/withdrawals/approve", s.adminOnly(s.handleApprove))
	mux.HandleFunc("POST /admin/withdrawals/reject", s.adminOnly(s.handleReject))
	mux.HandleFunc("POST /admin/withdrawals/requeue", s.adminOnly(s.handleRequeue))
	mux.HandleFunc("POST /admin/withdrawals/bulk", s.adminOnly(s.handleBulk))
	mux.HandleFunc("GET /admin/withdrawals/pending", s.adminOnly(s.handlePending))

	port := s.cfg.Port
	if port <= 0 {
		port = 8082
	}
	addr := ":" + strconv.Itoa(port)
	log.Printf("cashout listening on %s (network: %s)", addr, s.cfg.Network)
	return http.ListenAndServe(addr, cors(requestLogger(mux)))
}

func cors(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// requestLogger logs method and path for each request (no body or secrets).
func requestLogger(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("cashout %s %s", r.Method, r.URL.Path)
		h.ServeHTTP(w, r)
	})
}

func (s *Server) adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" || r.Header.Get("X-Admin-Token") != s.cfg.AdminToken {
			writeError(w, http.StatusUnauthorized, withdraw.CodeUnauthorized, "admin token required")
			return
		}
		h(w, r)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok", "service": "cashout", "network": s.cfg.Network}
	if ns, err := s.node.CheckNodeStatus(r.Context(), s.cfg.Network); err == nil {
		out["node"] = ns
	} else {
		out["node"] = map[string]bool{"connected": false, "synced": false}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
