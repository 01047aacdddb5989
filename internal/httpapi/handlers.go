package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"guildry.org/internal/event"
	"guildry.org/internal/obs"
	"guildry.org/internal/registry"
)

const serviceName = "guildry-api"

// ReadyProbe reports whether the process can serve traffic (for example a
// database ping). A nil DB means the in-memory backend and always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the registry service.
type API struct {
	mux        *http.ServeMux
	registry   *registry.Service
	events     *event.Stream
	readyProbe ReadyProbe
	version    string
}

func New(reg *registry.Service, events *event.Stream, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		registry:   reg,
		events:     events,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// token issuance
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// registry surface
	a.mux.HandleFunc("/v1/entities", a.handleEntitiesCollection)
	a.mux.HandleFunc("/v1/entities/admin", a.handleAdminAddEntity)
	a.mux.HandleFunc("/v1/entities/", a.handleEntityResource)
	a.mux.HandleFunc("/v1/contributors", a.handleContributorsCollection)
	a.mux.HandleFunc("/v1/contributors/", a.handleContributorResource)
	a.mux.HandleFunc("/v1/moderator", a.handleModerator)

	// live event feed
	a.mux.HandleFunc("/v1/events", a.Stream)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server. Rate
// limiting and body caps are applied by the caller so they stay tunable.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
