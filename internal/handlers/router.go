package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/casaflow-io/casaflowgo/internal/buildinfo"
	"github.com/casaflow-io/casaflowgo/internal/config"
	"github.com/casaflow-io/casaflowgo/internal/database"
	"github.com/casaflow-io/casaflowgo/internal/middleware"
	"github.com/casaflow-io/casaflowgo/internal/offers"
	"github.com/casaflow-io/casaflowgo/internal/pipeline"
	"github.com/casaflow-io/casaflowgo/internal/services/esign"
	"github.com/casaflow-io/casaflowgo/internal/services/storage"
	ws "github.com/casaflow-io/casaflowgo/internal/websocket"
)

// Router wraps the mux router and everything the handlers touch
type Router struct {
	*mux.Router
	db       *database.DB
	cfg      *config.Config
	analyzer *pipeline.Analyzer
	offers   *offers.Service
	esign    *esign.Client
	storage  *storage.Service
	hub      *ws.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, cfg *config.Config, analyzer *pipeline.Analyzer, offerSvc *offers.Service, esignClient *esign.Client, store *storage.Service, hub *ws.Hub) *Router {
	r := &Router{
		Router:   mux.NewRouter(),
		db:       db,
		cfg:      cfg,
		analyzer: analyzer,
		offers:   offerSvc,
		esign:    esignClient,
		storage:  store,
		hub:      hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")

	// Signing provider callbacks, verified by HMAC rather than JWT
	r.HandleFunc("/webhooks/esign", r.esignWebhook).Methods("POST")

	// Dashboard socket
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, w, req)
	})

	// Protected API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(cfg.JWTSecret))

	api.HandleFunc("/documents", r.ingestDocument).Methods("POST")
	api.HandleFunc("/documents/{id}/analysis", r.getAnalysis).Methods("GET")
	api.HandleFunc("/documents/{id}/url", r.getDocumentURL).Methods("GET")
	api.HandleFunc("/analyses", r.listAnalyses).Methods("GET")

	api.HandleFunc("/offers", r.listOffers).Methods("GET")
	api.HandleFunc("/offers/{id}", r.getOffer).Methods("GET")
	api.HandleFunc("/offers/{id}/accept", r.acceptOffer).Methods("POST")
	api.HandleFunc("/offers/{id}/decline", r.declineOffer).Methods("POST")
	api.HandleFunc("/offers/{id}/counter", r.counterOffer).Methods("POST")
	api.HandleFunc("/offers/{id}/reset-signing", r.resetSigning).Methods("POST")
	api.HandleFunc("/offers/{id}/sign-url", r.getSignURL).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"commit":  buildinfo.CommitHash,
		"started": buildinfo.StartTime,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
