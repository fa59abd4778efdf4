package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/splvrdge/savr/internal/core"
	"github.com/splvrdge/savr/internal/log"
	"github.com/splvrdge/savr/internal/middleware/auth"
	"github.com/splvrdge/savr/internal/middleware/ratelimit"
	"github.com/splvrdge/savr/internal/middleware/security"
	"github.com/splvrdge/savr/internal/middleware/trace"
)

// Ledger is the write side of the API.
type Ledger interface {
	AddIncome(ctx context.Context, requester, userID string, entry core.Entry) (core.Income, error)
	UpdateIncome(ctx context.Context, requester string, incomeID int64, entry core.Entry) (core.Income, error)
	DeleteIncome(ctx context.Context, requester string, incomeID int64) error
	ListIncomes(ctx context.Context, requester, userID string) ([]core.Income, error)
	AddExpense(ctx context.Context, requester, userID string, entry core.Entry) (core.Expense, error)
	DeleteExpense(ctx context.Context, requester string, expenseID int64) error
	ListExpenses(ctx context.Context, requester, userID string) ([]core.Expense, error)
}

// Reporting is the read side of the API.
type Reporting interface {
	GetSummary(ctx context.Context, requester, userID string) (core.Summary, error)
	GetTransactionHistory(ctx context.Context, requester, userID string, f core.HistoryFilter) (core.HistoryPage, error)
	GetTransactionDetails(ctx context.Context, requester, userID string, transactionID int64) (core.Transaction, error)
	Reconcile(ctx context.Context, requester, userID string) (core.Reconciliation, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators.
type Options struct {
	Addr          string
	Ledger        Ledger
	Reporting     Reporting
	Pinger        Pinger
	Authenticator *auth.Authenticator
	Limiter       *ratelimit.Limiter
	Detector      *security.Detector
	Logger        *log.Logger
	Production    bool
}

type Server struct {
	http.Server
	ledger        Ledger
	reporting     Reporting
	pinger        Pinger
	authenticator *auth.Authenticator
	limiter       *ratelimit.Limiter
	detector      *security.Detector
	tracer        *trace.Middleware
	logger        *log.Logger
	errors        *log.StructuredLogger
	production    bool
	started       time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Detector == nil {
		opts.Detector = security.NewDetector()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:        opts.Ledger,
		reporting:     opts.Reporting,
		pinger:        opts.Pinger,
		authenticator: opts.Authenticator,
		limiter:       opts.Limiter,
		detector:      opts.Detector,
		logger:        logger,
		errors:        log.NewStructuredLogger(logger),
		production:    opts.Production,
		started:       time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	s.handleAPI(mux, "POST /api/users/{userID}/incomes", s.handleAddIncome)
	s.handleAPI(mux, "GET /api/users/{userID}/incomes", s.handleListIncomes)
	s.handleAPI(mux, "PUT /api/incomes/{incomeID}", s.handleUpdateIncome)
	s.handleAPI(mux, "DELETE /api/incomes/{incomeID}", s.handleDeleteIncome)

	s.handleAPI(mux, "POST /api/users/{userID}/expenses", s.handleAddExpense)
	s.handleAPI(mux, "GET /api/users/{userID}/expenses", s.handleListExpenses)
	s.handleAPI(mux, "DELETE /api/expenses/{expenseID}", s.handleDeleteExpense)

	s.handleAPI(mux, "GET /api/users/{userID}/summary", s.handleSummary)
	s.handleAPI(mux, "GET /api/users/{userID}/summary/reconciliation", s.handleReconcile)
	s.handleAPI(mux, "GET /api/users/{userID}/transactions", s.handleTransactionHistory)
	s.handleAPI(mux, "GET /api/users/{userID}/transactions/{transactionID}", s.handleTransactionDetails)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "Route not found").Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// handleAPI registers an authenticated, rate limited route.
func (s *Server) handleAPI(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = s.limiter.Middleware(s.rateLimitKey, s.writeRateLimited)(handler)
	if s.authenticator != nil {
		handler = s.authenticator.Middleware(s.writeUnauthorized)(handler)
	}
	mux.Handle(pattern, handler)
}

// rateLimitKey budgets authenticated callers by user id and everyone else by
// client address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if uid := auth.UserIDFromContext(r.Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldUserID, auth.UserIDFromContext(r.Context()),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}

func (s *Server) writeUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse(http.StatusUnauthorized, "Authentication required").
		Header("WWW-Authenticate", `Bearer realm="savr"`)
	if !s.production {
		resp.Detail(err)
	}
	resp.Write(w)
}

// fail answers with the status and message for err. Internal failures are
// logged with the operation and the caller; their text reaches the client only
// outside production.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op, userID string, err error) {
	status, msg := classifyError(err)
	requester := auth.UserIDFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		s.errors.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithUser(userID, requester).WithClientIP(s.detector.ExtractClientIP(r)))
	} else {
		s.logger.DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldStatusCode, status,
			log.FieldError, err.Error())
	}

	resp := ErrorResponse(status, msg)
	if !s.production {
		resp.Detail(err)
	}
	resp.Write(w)
}

// Shutdown stops the background workers and drains the HTTP server. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
