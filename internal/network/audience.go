// Package network - audience.go
// AudienceBridge: REST API through which viewers throw disasters at the operators
// and vote on uprisings.
package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/disaster"
	"github.com/MRamiBalles/TowerMadness/internal/domain/simerr"
	"github.com/MRamiBalles/TowerMadness/internal/engine"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

// AudienceCooldown is how long one viewer waits between interventions.
const AudienceCooldown = 10 * time.Second

// AudienceBridge handles viewer interactions.
type AudienceBridge struct {
	tower  Tower
	wsHub  *Hub
	logger *logger.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewAudienceBridge creates a new audience interaction handler. hub may be nil.
func NewAudienceBridge(tower Tower, hub *Hub, log *logger.Logger) *AudienceBridge {
	return &AudienceBridge{
		tower:    tower,
		wsHub:    hub,
		logger:   log,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// DisasterRequest is the payload for throwing a disaster.
type DisasterRequest struct {
	AudienceID string `json:"audience_id"`
	Kind       string `json:"kind"` // "FLOOD", "EARTHQUAKE", ...
}

// DecisionRequest is the payload for an uprising vote.
type DecisionRequest struct {
	AudienceID string `json:"audience_id"`
	Choice     string `json:"choice"` // "ALLY", "RESIST", "NEGOTIATE"
}

// HandleDisaster queues a debug disaster on behalf of the audience. Whether it can
// actually start (stackability, Full Harmony) is decided in the next tick.
// POST /api/audience/disaster
func (ab *AudienceBridge) HandleDisaster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DisasterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AudienceID == "" {
		jsonError(w, "Missing audience_id", http.StatusBadRequest)
		return
	}
	if !ab.admit(req.AudienceID) {
		jsonError(w, "Slow down", http.StatusTooManyRequests)
		return
	}

	in := engine.Input{Action: engine.ActionTriggerDebug, Kind: disaster.Kind(req.Kind), Source: engine.SourceAudience}
	if err := ab.tower.SubmitInput(in); err != nil {
		ab.submitError(w, err)
		return
	}

	ab.logger.Event("AUDIENCE_DISASTER", req.AudienceID, "Kind:"+req.Kind)
	jsonSuccess(w, http.StatusAccepted, map[string]interface{}{
		"queued": true,
		"kind":   req.Kind,
	})
}

// HandleDecision queues an uprising decision.
// POST /api/audience/decision
func (ab *AudienceBridge) HandleDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AudienceID == "" {
		jsonError(w, "Missing audience_id", http.StatusBadRequest)
		return
	}
	if !ab.admit(req.AudienceID) {
		jsonError(w, "Slow down", http.StatusTooManyRequests)
		return
	}

	in := engine.Input{Action: engine.ActionUprisingDecision, Choice: disaster.Choice(req.Choice), Source: engine.SourceAudience}
	if err := ab.tower.SubmitInput(in); err != nil {
		ab.submitError(w, err)
		return
	}

	ab.logger.Event("AUDIENCE_DECISION", req.AudienceID, "Choice:"+req.Choice)
	jsonSuccess(w, http.StatusAccepted, map[string]interface{}{
		"queued": true,
		"choice": req.Choice,
	})
}

// HandleStatus returns what a viewer needs to pick a disaster.
// GET /api/audience/status
func (ab *AudienceBridge) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := ab.tower.Latest()
	status := map[string]interface{}{
		"tick":      snap.Tick,
		"clock":     snap.Clock,
		"chaos":     snap.Chaos,
		"harmony":   snap.Harmony,
		"emergency": snap.Emergency,
		"flow":      snap.Flow,
		"score":     snap.Score.Total,
		"disasters": snap.Disasters,
		"timestamp": time.Now().Unix(),
	}
	if ab.wsHub != nil {
		status["online_count"] = ab.wsHub.Online()
		status["seats"] = ab.wsHub.Seats()
	}
	jsonSuccess(w, http.StatusOK, status)
}

// RegisterRoutes sets up the audience API routes.
func (ab *AudienceBridge) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/audience/disaster", ab.HandleDisaster)
	mux.HandleFunc("/api/audience/decision", ab.HandleDecision)
	mux.HandleFunc("/api/audience/status", ab.HandleStatus)
}

// admit enforces the per-viewer cooldown.
func (ab *AudienceBridge) admit(audienceID string) bool {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	now := ab.now()
	if last, ok := ab.lastSeen[audienceID]; ok && now.Sub(last) < AudienceCooldown {
		return false
	}
	ab.lastSeen[audienceID] = now
	return true
}

func (ab *AudienceBridge) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInputQueueFull):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, simerr.ErrInvalidState):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		ab.logger.Errorf("audience input: %v", err)
		jsonError(w, "Internal error", http.StatusInternalServerError)
	}
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
