package main

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/mcclellann/parcela/pkg/clock"
	"github.com/mcclellann/parcela/pkg/ledger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger instance and HTTP-level settings.
type Server struct {
	ledger          *ledger.Ledger
	clock           *clock.Simulated // nil unless time travel is enabled
	defaultLateRate decimal.Decimal
	logger          *logrus.Logger
}

func NewServer(l *ledger.Ledger, sim *clock.Simulated, defaultLateRate decimal.Decimal, logger *logrus.Logger) *Server {
	return &Server{
		ledger:          l,
		clock:           sim,
		defaultLateRate: defaultLateRate,
		logger:          logger,
	}
}

// NewHandler wraps the router with CORS handling. CORS sits outside the
// router so preflight requests are answered before method matching.
func NewHandler(s *Server, allowedOrigins []string) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	})(NewRouter(s))
}

// NewRouter registers every route.
func NewRouter(s *Server) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/quote", s.quoteHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/summary", s.summaryHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/transactions", s.transactionsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/installments/{number:[0-9]+}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	router.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	router.HandleFunc("/clients/{clientId}", s.getClientHandler).Methods("GET")
	router.HandleFunc("/clients/{clientId}", s.updateClientHandler).Methods("PUT")
	router.HandleFunc("/clients/{clientId}", s.deleteClientHandler).Methods("DELETE")
	router.HandleFunc("/clients/{clientId}/loans", s.clientLoansHandler).Methods("GET")
	router.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")
	router.HandleFunc("/refresh", s.refreshHandler).Methods("POST")
	router.HandleFunc("/cpf/{cpf}", s.cpfHandler).Methods("GET")

	if s.clock != nil {
		router.HandleFunc("/debug/clock", s.getClockHandler).Methods("GET")
		router.HandleFunc("/debug/clock", s.setClockHandler).Methods("PUT")
		router.HandleFunc("/debug/clock", s.resetClockHandler).Methods("DELETE")
		router.HandleFunc("/debug/clock/advance", s.advanceClockHandler).Methods("POST")
	}

	return router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request")
		next.ServeHTTP(w, r)
	})
}
