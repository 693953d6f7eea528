package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elys-network/joint/internal/access"
	"github.com/elys-network/joint/internal/factory"
	"github.com/elys-network/joint/internal/joint"
	"github.com/elys-network/joint/internal/lock"
	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/metrics"
	"github.com/elys-network/joint/internal/simulations"
	"github.com/elys-network/joint/internal/state"
	"github.com/elys-network/joint/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

var webLogger = logger.GetForComponent("web_server")

var (
	ErrUnknownAPIKey  = errors.New("unknown API key")
	ErrBadRequestBody = errors.New("request body is invalid")
)

type callerKey struct{}

// Config holds the dependencies of the web server.
type Config struct {
	Port  string
	Store state.Store
	// Factory enables the clone endpoint when set.
	Factory *factory.Factory
	Joints  []*joint.Joint
	// APIKeys maps bearer tokens to the caller identity operations run as.
	APIKeys map[string]common.Address
	// OnClone is told about instances created through the clone endpoint.
	OnClone func(*joint.Joint) error
}

// WebServer serves instance state and lifecycle operations over HTTP.
type WebServer struct {
	router  *mux.Router
	port    string
	store   state.Store
	factory *factory.Factory
	apiKeys map[string]common.Address
	onClone func(*joint.Joint) error

	mu         sync.RWMutex
	joints     map[string]*joint.Joint
	projectors map[string]*simulations.Projector

	server *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	ws := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		store:      cfg.Store,
		factory:    cfg.Factory,
		apiKeys:    cfg.APIKeys,
		onClone:    cfg.OnClone,
		joints:     make(map[string]*joint.Joint),
		projectors: make(map[string]*simulations.Projector),
	}
	for _, j := range cfg.Joints {
		ws.Register(j)
	}

	ws.setupRoutes()
	return ws, nil
}

// Register makes an instance reachable through the API.
func (ws *WebServer) Register(j *joint.Joint) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.joints[j.ID()] = j
	ws.projectors[j.ID()] = simulations.NewProjector(j)
}

func (ws *WebServer) lookup(id string) (*joint.Joint, *simulations.Projector, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	j, ok := ws.joints[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", state.ErrInstanceNotFound, id)
	}
	return j, ws.projectors[id], nil
}

func (ws *WebServer) sortedJoints() []*joint.Joint {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := make([]*joint.Joint, 0, len(ws.joints))
	for _, j := range ws.joints {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID() < out[b].ID() })
	return out
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/instances", ws.handleListInstances).Methods("GET")
	api.HandleFunc("/instances/{id}", ws.handleGetInstance).Methods("GET")
	api.HandleFunc("/instances/{id}/ledger", ws.handleGetLedger).Methods("GET")
	api.HandleFunc("/instances/{id}/projection", ws.handleGetProjection).Methods("GET")
	api.HandleFunc("/instances/{id}/reports", ws.handleGetReports).Methods("GET")
	api.HandleFunc("/instances/{id}/summary", ws.handleGetSummary).Methods("GET")

	ops := api.PathPrefix("/instances/{id}").Subrouter()
	ops.Use(ws.authMiddleware)
	ops.HandleFunc("/invest", ws.handleInvest).Methods("POST")
	ops.HandleFunc("/harvest", ws.handleHarvest).Methods("POST")
	ops.HandleFunc("/liquidate", ws.handleLiquidate).Methods("POST")
	ops.HandleFunc("/return-loose", ws.handleReturnLoose).Methods("POST")
	ops.HandleFunc("/parameters", ws.handleSetParameters).Methods("POST")
	ops.HandleFunc("/provider", ws.handleSetProvider).Methods("POST")
	ops.HandleFunc("/sweep", ws.handleSweep).Methods("POST")
	ops.HandleFunc("/swap", ws.handleSwap).Methods("POST")
	ops.HandleFunc("/manual/claim", ws.handleManualClaim).Methods("POST")
	ops.HandleFunc("/manual/withdraw", ws.handleManualWithdraw).Methods("POST")
	ops.HandleFunc("/manual/remove-liquidity", ws.handleManualRemove).Methods("POST")
	ops.HandleFunc("/manual/close-hedge", ws.handleManualCloseHedge).Methods("POST")
	ops.HandleFunc("/clone", ws.handleClone).Methods("POST")

	ws.router.Use(metrics.Middleware)
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the routed handler.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeError maps err onto a status code.
func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		webLogger.Error().Err(err).Msg("Request failed")
	}
	ws.writeErrorResponse(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequestBody):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrUnauthorized), errors.Is(err, access.ErrNoCaller):
		return http.StatusForbidden
	case errors.Is(err, state.ErrInstanceNotFound), errors.Is(err, state.ErrLedgerNotFound):
		return http.StatusNotFound
	case errors.Is(err, joint.ErrNothingToInvest),
		errors.Is(err, joint.ErrAlreadyInvested),
		errors.Is(err, joint.ErrNotIdle),
		errors.Is(err, types.ErrHedgeAlreadyActive),
		errors.Is(err, state.ErrLedgerConflict),
		errors.Is(err, lock.ErrLockHeld),
		errors.Is(err, factory.ErrAlreadyInitialized),
		errors.Is(err, factory.ErrAccountInUse):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidParameter),
		errors.Is(err, types.ErrInvalidInstance),
		errors.Is(err, joint.ErrUnsupportedSwapTarget),
		errors.Is(err, joint.ErrSweepForbidden),
		errors.Is(err, joint.ErrProviderMismatch),
		errors.Is(err, factory.ErrSameLegs),
		errors.Is(err, simulations.ErrNotALeg):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// authMiddleware resolves the bearer token into the caller identity.
func (ws *WebServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		caller, known := ws.apiKeys[strings.TrimSpace(token)]
		if !ok || !known {
			ws.writeError(w, ErrUnknownAPIKey)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func callerFrom(r *http.Request) common.Address {
	caller, _ := r.Context().Value(callerKey{}).(common.Address)
	return caller
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
