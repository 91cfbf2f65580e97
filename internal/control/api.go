package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/alertagent/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Delivered alerts kept for GET /alerts?all=true
const maxHistory = 100

var (
	ErrAlertNotFound       = errors.New("alert not found")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
)

// API is the local HTTP control interface of the agent. It presents
// delivered alerts until they are acknowledged and mirrors the status line.
type API struct {
	mu          sync.RWMutex
	alerts      []*types.Presentation // oldest first
	statusText  string
	statusSince time.Time
	logger      zerolog.Logger

	stateFunc    func() types.ConnectionState
	locationFunc func() string
	endpointFunc func() string
	metricsFunc  func() map[string]interface{}
	ackFunc      func()
}

// NewAPI creates a new control API
func NewAPI(logger zerolog.Logger) *API {
	return &API{
		statusText:  "Stopped",
		statusSince: time.Now(),
		logger:      logger.With().Str("component", "control").Logger(),
	}
}

// SetHandlers sets the read projections of the agent and the hook run on acknowledge
func (api *API) SetHandlers(state func() types.ConnectionState, location func() string, endpoint func() string, metrics func() map[string]interface{}, onAck func()) {
	api.stateFunc = state
	api.locationFunc = location
	api.endpointFunc = endpoint
	api.metricsFunc = metrics
	api.ackFunc = onAck
}

// Show presents an alert; every call creates a new presentation instance
func (api *API) Show(alert types.AlertPayload) error {
	p := &types.Presentation{
		ID:         uuid.NewString(),
		Alert:      alert,
		ReceivedAt: time.Now(),
	}

	api.mu.Lock()
	api.alerts = append(api.alerts, p)
	if len(api.alerts) > maxHistory {
		api.alerts = api.alerts[len(api.alerts)-maxHistory:]
	}
	api.mu.Unlock()

	api.logger.Info().
		Str("alert_id", p.ID).
		Str("code", alert.CodeName).
		Str("color", alert.CodeColor).
		Str("location", alert.LocationName).
		Str("priority", alert.Priority).
		Str("message", alert.Message).
		Msg("ALERT")
	return nil
}

// UpdateStatus replaces the status line
func (api *API) UpdateStatus(text string) error {
	api.mu.Lock()
	api.statusText = text
	api.statusSince = time.Now()
	api.mu.Unlock()
	return nil
}

// Alerts returns presentations newest first, only unacknowledged ones unless all is set
func (api *API) Alerts(all bool) []types.Presentation {
	api.mu.RLock()
	defer api.mu.RUnlock()

	out := make([]types.Presentation, 0, len(api.alerts))
	for i := len(api.alerts) - 1; i >= 0; i-- {
		p := api.alerts[i]
		if all || !p.Acknowledged {
			out = append(out, *p)
		}
	}
	return out
}

// Acknowledge closes the presentation with id and stops speech in progress
func (api *API) Acknowledge(id string) (types.Presentation, error) {
	api.mu.Lock()
	var found *types.Presentation
	for _, p := range api.alerts {
		if p.ID == id {
			found = p
			break
		}
	}
	if found == nil {
		api.mu.Unlock()
		return types.Presentation{}, ErrAlertNotFound
	}
	if found.Acknowledged {
		p := *found
		api.mu.Unlock()
		return p, ErrAlreadyAcknowledged
	}
	p := api.ackLocked(found)
	api.mu.Unlock()

	api.afterAck(p)
	return p, nil
}

// AcknowledgeLatest closes the newest unacknowledged presentation
func (api *API) AcknowledgeLatest() (types.Presentation, error) {
	api.mu.Lock()
	var found *types.Presentation
	for i := len(api.alerts) - 1; i >= 0; i-- {
		if !api.alerts[i].Acknowledged {
			found = api.alerts[i]
			break
		}
	}
	if found == nil {
		api.mu.Unlock()
		return types.Presentation{}, ErrAlertNotFound
	}
	p := api.ackLocked(found)
	api.mu.Unlock()

	api.afterAck(p)
	return p, nil
}

func (api *API) ackLocked(p *types.Presentation) types.Presentation {
	now := time.Now()
	p.Acknowledged = true
	p.AckedAt = &now
	return *p
}

func (api *API) afterAck(p types.Presentation) {
	api.logger.Info().Str("alert_id", p.ID).Str("code", p.Alert.CodeName).Msg("alert acknowledged")
	if api.ackFunc != nil {
		api.ackFunc()
	}
}

// Status returns the agent status as shown on the status line
func (api *API) Status() types.AgentStatus {
	api.mu.RLock()
	status := types.AgentStatus{
		State: types.StateIdle,
		Text:  api.statusText,
		Since: api.statusSince,
	}
	for _, p := range api.alerts {
		if !p.Acknowledged {
			status.ActiveCount++
		}
	}
	api.mu.RUnlock()

	if api.stateFunc != nil {
		status.State = api.stateFunc()
	}
	if api.locationFunc != nil {
		status.Location = api.locationFunc()
	}
	if api.endpointFunc != nil {
		status.Endpoint = api.endpointFunc()
	}
	return status
}

// SetupRoutes configures HTTP routes
func (api *API) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/alerts", api.alertsHandler).Methods("GET")
	router.HandleFunc("/alerts/ack", api.ackLatestHandler).Methods("POST")
	router.HandleFunc("/alerts/{id}/ack", api.ackHandler).Methods("POST")
	router.HandleFunc("/metrics", api.metricsHandler).Methods("GET")
}

// healthHandler returns service health
func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// statusHandler returns the current connection status
func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.Status())
}

// alertsHandler lists presented alerts
func (api *API) alertsHandler(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.Alerts(all))
}

// ackHandler acknowledges one alert by id
func (api *API) ackHandler(w http.ResponseWriter, r *http.Request) {
	p, err := api.Acknowledge(mux.Vars(r)["id"])
	api.writeAck(w, p, err)
}

// ackLatestHandler acknowledges the newest open alert
func (api *API) ackLatestHandler(w http.ResponseWriter, r *http.Request) {
	p, err := api.AcknowledgeLatest()
	api.writeAck(w, p, err)
}

func (api *API) writeAck(w http.ResponseWriter, p types.Presentation, err error) {
	switch {
	case errors.Is(err, ErrAlertNotFound):
		http.Error(w, "no such alert", http.StatusNotFound)
		return
	case errors.Is(err, ErrAlreadyAcknowledged):
		http.Error(w, "alert already acknowledged", http.StatusConflict)
		return
	case err != nil:
		api.logger.Error().Err(err).Msg("failed to acknowledge alert")
		http.Error(w, "failed to acknowledge alert", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// metricsHandler returns Prometheus-compatible metrics
func (api *API) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{}
	if api.metricsFunc != nil {
		for k, v := range api.metricsFunc() {
			metrics[k] = v
		}
	}
	status := api.Status()
	metrics["alertagent_alerts_active"] = status.ActiveCount
	metrics["alertagent_connected"] = status.State == types.StateConnected

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	// Output in Prometheus text format
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	for _, name := range names {
		switch v := metrics[name].(type) {
		case int:
			fmt.Fprintf(w, "%s %d\n", name, v)
		case int64:
			fmt.Fprintf(w, "%s %d\n", name, v)
		case float64:
			fmt.Fprintf(w, "%s %f\n", name, v)
		case bool:
			if v {
				fmt.Fprintf(w, "%s 1\n", name)
			} else {
				fmt.Fprintf(w, "%s 0\n", name)
			}
		default:
			fmt.Fprintf(w, "%s %v\n", name, v)
		}
	}
}

// Start starts the HTTP server
func (api *API) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	api.SetupRoutes(router)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		api.logger.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	api.logger.Info().Str("addr", addr).Msg("control API started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
