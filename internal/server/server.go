package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/simonvc/chainledger/internal/observability"
	"github.com/simonvc/chainledger/internal/service"
)

// Options tune the HTTP surface. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// Metrics, when set, is both recorded by the middleware and served
	// on /metrics.
	Metrics *observability.Metrics
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
	// Production enables HTTPS redirects in the security headers.
	Production bool
	Timeout    time.Duration
	// Health backs /healthz.
	Health func(ctx context.Context) error
}

type Server struct {
	ledger *service.Ledger
	router chi.Router
	addr   string
	logger *slog.Logger
	opts   Options
	http   *http.Server
}

func New(l *service.Ledger, addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	s := &Server{ledger: l, router: r, addr: addr, logger: opts.Logger, opts: opts}
	r.Use(middlewareStack(opts)...)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Accounts
		r.Post("/accounts", s.createAccount)
		r.Get("/accounts", s.listAccounts)
		r.Get("/accounts/code/{code}", s.getAccountByCode)
		r.Get("/accounts/{id}", s.getAccount)
		r.Get("/accounts/{id}/balance", s.getAccountBalance)
		r.Get("/accounts/{id}/ledger", s.getAccountLedger)
		r.Post("/accounts/{id}/deactivate", s.deactivateAccount)

		// Transactions
		r.Post("/transactions", s.createTransaction)
		r.Get("/transactions", s.listTransactions)
		r.Get("/transactions/number/{number}", s.getTransactionByNumber)
		r.Get("/transactions/{id}", s.getTransaction)
		r.Post("/transactions/{id}/post", s.postTransaction)
		r.Post("/transactions/{id}/reverse", s.reverseTransaction)
		r.Post("/transactions/{id}/cancel", s.cancelTransaction)
		r.Get("/transactions/{id}/verify", s.verifyTransaction)

		// Chain and reports
		r.Get("/chain/verify", s.verifyChain)
		r.Get("/chain/broken", s.brokenTransactions)
		r.Get("/chart", s.getChart)
		r.Get("/reports/trial-balance", s.trialBalance)
		r.Get("/reports/consistency", s.consistency)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("chainledger server listening", slog.String("addr", s.addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("chainledger server listening", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
