// Package network - replay.go
// Replay and recap endpoints: the live tail of the event log, the persisted recap of a
// session, the leaderboard and generated asset content.
package network

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/TowerMadness/internal/events"
	"github.com/MRamiBalles/TowerMadness/internal/infra/cache"
	"github.com/MRamiBalles/TowerMadness/internal/infra/storage"
	"github.com/MRamiBalles/TowerMadness/internal/platform/logger"
)

// maxReplayEvents caps one replay page.
const maxReplayEvents = 500

// AssetLookup resolves a handle shown in a snapshot to generated content.
type AssetLookup interface {
	Lookup(handle string) (cache.Asset, bool)
}

// ReplayHandler provides the replay API. The reconstructor, leaderboard and asset
// lookup are optional; their routes answer 503 without them.
type ReplayHandler struct {
	eventLog    *events.EventLog
	sessionID   string
	recon       *storage.Reconstructor
	leaderboard storage.Leaderboard
	assets      AssetLookup
	logger      *logger.Logger
}

// NewReplayHandler creates a new replay handler for the live session.
func NewReplayHandler(el *events.EventLog, sessionID string, log *logger.Logger) *ReplayHandler {
	return &ReplayHandler{
		eventLog:  el,
		sessionID: sessionID,
		logger:    log,
	}
}

// WithRecap enables /api/recap from the persisted ledger.
func (rh *ReplayHandler) WithRecap(r *storage.Reconstructor) *ReplayHandler {
	rh.recon = r
	return rh
}

// WithLeaderboard enables /api/leaderboard.
func (rh *ReplayHandler) WithLeaderboard(lb storage.Leaderboard) *ReplayHandler {
	rh.leaderboard = lb
	return rh
}

// WithAssets enables /api/assets.
func (rh *ReplayHandler) WithAssets(a AssetLookup) *ReplayHandler {
	rh.assets = a
	return rh
}

// ReplayResponse is the API response for a replay page.
type ReplayResponse struct {
	SessionID   string             `json:"session_id"`
	TotalEvents int                `json:"total_events"`
	NextSeq     int64              `json:"next_seq"`
	GeneratedAt string             `json:"generated_at"`
	Events      []events.GameEvent `json:"events"`
}

// HandleReplay returns retained events after a sequence number.
// GET /api/replay?since=N&type=DISASTER_TRIGGERED&actor=passenger-3&limit=100
func (rh *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	since, err := queryInt(q.Get("since"), 0)
	if err != nil {
		jsonError(w, "Invalid since", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(q.Get("limit"), maxReplayEvents)
	if err != nil || limit <= 0 {
		jsonError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	limit = min(limit, maxReplayEvents)
	eventType := events.EventType(q.Get("type"))
	actor := q.Get("actor")

	resp := ReplayResponse{
		SessionID:   rh.sessionID,
		NextSeq:     int64(since),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      []events.GameEvent{},
	}
	for _, e := range rh.eventLog.Since(int64(since)) {
		if len(resp.Events) == limit {
			break
		}
		resp.NextSeq = e.Seq
		if eventType != "" && e.Type != eventType {
			continue
		}
		if actor != "" && e.ActorID != actor {
			continue
		}
		resp.Events = append(resp.Events, e)
	}
	resp.TotalEvents = len(resp.Events)

	jsonSuccess(w, http.StatusOK, resp)
}

// HandleStats returns event counts per type over the retained history.
// GET /api/replay/stats
func (rh *ReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := rh.eventLog.Replay()
	counts := make(map[events.EventType]int)
	for _, e := range all {
		counts[e.Type]++
	}

	jsonSuccess(w, http.StatusOK, map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"total_events": len(all),
		"last_seq":     rh.eventLog.LastSeq(),
		"dropped":      rh.eventLog.Dropped(),
		"failed":       rh.eventLog.Failed(),
		"by_type":      counts,
	})
}

// HandleRecap returns the readable timeline and totals of a session.
// GET /api/recap?session_id=XXX&day=N
func (rh *ReplayHandler) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if rh.recon == nil {
		jsonError(w, "Recap needs persistent storage", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = rh.sessionID
	}
	day, err := queryInt(r.URL.Query().Get("day"), 1)
	if err != nil {
		jsonError(w, "Invalid day", http.StatusBadRequest)
		return
	}

	recap, err := rh.recon.GenerateRecap(r.Context(), sessionID, day)
	if err != nil {
		rh.logger.Errorf("recap %s: %v", sessionID, err)
		jsonError(w, "Failed to build recap", http.StatusInternalServerError)
		return
	}
	totals, err := rh.recon.RebuildTotals(r.Context(), sessionID)
	if err != nil {
		rh.logger.Errorf("totals %s: %v", sessionID, err)
		jsonError(w, "Failed to build recap", http.StatusInternalServerError)
		return
	}

	rh.logger.Event("RECAP", "viewer", "Session:"+sessionID+" Entries:"+strconv.Itoa(len(recap)))
	// the ledger of the running session misses whatever the log could not store
	var missing int64
	if sessionID == rh.sessionID {
		missing = rh.eventLog.Dropped() + rh.eventLog.Failed()
	}
	jsonSuccess(w, http.StatusOK, map[string]interface{}{
		"session_id":     sessionID,
		"totals":         totals,
		"timeline":       recap,
		"missing_events": missing,
	})
}

// HandleLeaderboard returns the best sessions.
// GET /api/leaderboard?n=10
func (rh *ReplayHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if rh.leaderboard == nil {
		jsonError(w, "Leaderboard needs persistent storage", http.StatusServiceUnavailable)
		return
	}

	n, err := queryInt(r.URL.Query().Get("n"), 10)
	if err != nil {
		jsonError(w, "Invalid n", http.StatusBadRequest)
		return
	}
	top, err := rh.leaderboard.Top(r.Context(), n)
	if err != nil {
		rh.logger.Errorf("leaderboard: %v", err)
		jsonError(w, "Failed to read leaderboard", http.StatusInternalServerError)
		return
	}
	if top == nil {
		top = []storage.ScoreEntry{}
	}
	jsonSuccess(w, http.StatusOK, top)
}

// HandleAsset returns generated content by handle.
// GET /api/assets?handle=gen:XXX
func (rh *ReplayHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if rh.assets == nil {
		jsonError(w, "Content generation is off", http.StatusServiceUnavailable)
		return
	}

	handle := r.URL.Query().Get("handle")
	a, ok := rh.assets.Lookup(handle)
	if !ok {
		jsonError(w, "Asset not found", http.StatusNotFound)
		return
	}
	jsonSuccess(w, http.StatusOK, a)
}

// RegisterRoutes sets up the replay API routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/replay", rh.HandleReplay)
	mux.HandleFunc("/api/replay/stats", rh.HandleStats)
	mux.HandleFunc("/api/recap", rh.HandleRecap)
	mux.HandleFunc("/api/leaderboard", rh.HandleLeaderboard)
	mux.HandleFunc("/api/assets", rh.HandleAsset)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
