package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/leaderboard"
	"citizen-reporting-system/pkg/middleware"
	"citizen-reporting-system/pkg/models"
	"citizen-reporting-system/pkg/push"
	"citizen-reporting-system/pkg/reportview"
	"citizen-reporting-system/pkg/response"
	"citizen-reporting-system/pkg/security"
	"citizen-reporting-system/pkg/shift"
	"citizen-reporting-system/pkg/staging"
)

const heartbeatInterval = 25 * time.Second

type server struct {
	log         logrus.FieldLogger
	auth        *middleware.Authenticator
	hub         *push.Hub
	lister      reportview.Lister
	slots       staging.Factory
	sealer      *security.Sealer
	viewCfg     reportview.Config
	sessions    *sessions
	leaderboard *leaderboard.Cache
	shifts      *shift.Service
}

func (s *server) buffer(userID string) *reportview.OptimisticBuffer {
	return reportview.NewOptimisticBuffer(s.slots(userID), s.sealer, s.log.WithField("user_id", userID))
}

func (s *server) openView(userID string) *reportview.View {
	return reportview.New(s.lister, s.hub, s.buffer(userID), s.viewCfg, s.log.WithField("user_id", userID))
}

func (s *server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/view", s.viewHandler)
	api.HandleFunc("/api/view/filter", s.filterHandler)
	api.HandleFunc("/api/view/refresh", s.refreshHandler)
	api.HandleFunc("/api/view/optimistic", s.optimisticHandler)
	api.HandleFunc("/api/leaderboard", s.leaderboardHandler)
	api.Handle("/api/shifts/active", middleware.RequireRole("admin", "patrol")(http.HandlerFunc(s.activeShiftHandler)))

	root := http.NewServeMux()
	root.HandleFunc("/health", s.healthHandler)
	root.Handle("/metrics", middleware.GetMetricsHandler())
	// The stream skips the metrics wrapper; its duration is the connection lifetime.
	root.Handle("/api/view/stream", middleware.TraceMiddleware(s.auth.Middleware(http.HandlerFunc(s.streamHandler))))
	root.Handle("/api/", middleware.TraceMiddleware(
		middleware.MetricsMiddleware(
			middleware.Logger(s.log)(s.auth.Middleware(api)),
		),
	))
	return root
}

func userID(r *http.Request) string {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.UserID
}

// streamHandler opens (or joins) the user's view and pushes a snapshot on
// every change until the client disconnects.
func (s *server) streamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	uid := userID(r)
	view := s.sessions.acquire(r.Context(), uid)
	defer s.sessions.release(uid)

	response.StreamHeaders(w)

	log := s.log.WithFields(logrus.Fields{"user_id": uid, "trace_id": middleware.GetTraceID(r)})
	log.Info("view stream opened")
	defer log.Info("view stream closed")

	_ = response.Event(w, "connected", map[string]string{"type": "connected", "message": "Connection established"})
	initial := view.State()
	if err := response.Event(w, "snapshot", initial); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	sent := initial.Version
	for {
		select {
		case <-r.Context().Done():
			return
		case <-view.Done():
			return
		case <-heartbeat.C:
			_ = response.Comment(w, "ping")
			flusher.Flush()
		case <-view.Changes():
			state := view.State()
			if state.Version == sent && state.Error == "" {
				continue
			}
			sent = state.Version
			if err := response.Event(w, "snapshot", state); err != nil {
				log.WithError(err).Debug("stream write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func (s *server) currentView(w http.ResponseWriter, r *http.Request) (*reportview.View, bool) {
	view, ok := s.sessions.get(userID(r))
	if !ok {
		response.Error(w, http.StatusNotFound, "No open view", "Connect to /api/view/stream first")
		return nil, false
	}
	return view, true
}

func (s *server) viewHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	view, ok := s.currentView(w, r)
	if !ok {
		return
	}
	response.Success(w, http.StatusOK, "View retrieved", view.State())
}

func (s *server) filterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	var f models.FilterState
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	f, err := normalizeFilter(f)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}
	view, ok := s.currentView(w, r)
	if !ok {
		return
	}
	view.SetFilter(f)
	response.Success(w, http.StatusAccepted, "Filter updated", f)
}

// normalizeFilter trims the category, maps legacy status spellings and
// rejects unknown values.
func normalizeFilter(f models.FilterState) (models.FilterState, error) {
	f.Category = strings.TrimSpace(f.Category)
	if !f.AnyStatus() {
		st, ok := models.ParseStatus(string(f.Status))
		if !ok {
			return f, fmt.Errorf("unknown status %q", f.Status)
		}
		f.Status = st
	}
	admitted := make([]models.Status, 0, len(f.Admitted))
	for _, raw := range f.Admitted {
		st, ok := models.ParseStatus(string(raw))
		if !ok {
			return f, fmt.Errorf("unknown status %q", raw)
		}
		admitted = append(admitted, st)
	}
	if len(admitted) > 0 {
		f.Admitted = admitted
	} else {
		f.Admitted = nil
	}
	if !f.AnyPriority() {
		p := models.Priority(strings.ToLower(strings.TrimSpace(string(f.Priority))))
		if !p.Valid() {
			return f, fmt.Errorf("unknown priority %q", f.Priority)
		}
		f.Priority = p
	}
	return f, nil
}

func (s *server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	view, ok := s.currentView(w, r)
	if !ok {
		return
	}
	view.Refresh()
	response.Success(w, http.StatusAccepted, "Refresh requested", nil)
}

type optimisticRequest struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Priority       models.Priority `json:"priority"`
	Location       string          `json:"location"`
	ImageURL       string          `json:"image_url"`
	IsAnonymous    bool            `json:"is_anonymous"`
	Privacy        string          `json:"privacy"`
	ExpectedStatus string          `json:"expected_status"`
}

// optimisticHandler stages a just-submitted report for the user's next view.
// The returned marker must travel with the submission as its correlation id.
func (s *server) optimisticHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	var req optimisticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Category) == "" {
		response.Error(w, http.StatusBadRequest, "Title and category are required", "")
		return
	}

	entry := models.OptimisticEntry{
		Report: models.Report{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Priority:    req.Priority,
			Location:    req.Location,
			ImageURL:    req.ImageURL,
			IsAnonymous: req.IsAnonymous || req.Privacy == "anonymous",
			IsPublic:    req.Privacy != "private",
		},
	}
	if req.ExpectedStatus != "" {
		st, ok := models.ParseStatus(req.ExpectedStatus)
		if !ok {
			response.Error(w, http.StatusBadRequest, "Invalid expected status", req.ExpectedStatus)
			return
		}
		entry.ExpectedStatus = st
	}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		entry.Report.ReporterID = claims.UserID
		entry.Report.Reporter = claims.Name
	}

	staged, err := s.buffer(userID(r)).Stage(r.Context(), entry)
	if err != nil {
		s.log.WithError(err).Warn("failed to stage optimistic report")
		response.Error(w, http.StatusServiceUnavailable, "Failed to stage report", "")
		return
	}
	response.Success(w, http.StatusCreated, "Report staged", map[string]interface{}{
		"marker":    staged.Marker,
		"view_id":   staged.ViewID(),
		"staged_at": staged.StagedAt,
	})
}

func (s *server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	scope := models.LeaderboardScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = models.ScopeWeekly
	}
	if !scope.Valid() {
		response.Error(w, http.StatusBadRequest, "Invalid scope", "Use weekly, monthly or all_time")
		return
	}

	entries, err := s.leaderboard.Get(r.Context(), scope)
	if err != nil {
		response.Error(w, http.StatusServiceUnavailable, "Failed to load leaderboard", err.Error())
		return
	}
	response.Success(w, http.StatusOK, "Leaderboard retrieved", map[string]interface{}{
		"scope":   scope,
		"entries": entries,
	})
}

func (s *server) activeShiftHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	active, err := s.shifts.Active(r.Context())
	if err != nil {
		response.Error(w, http.StatusServiceUnavailable, "Failed to load duty schedule", err.Error())
		return
	}
	response.Success(w, http.StatusOK, "Active shift retrieved", active)
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":      "UP",
		"service":     "view-service",
		"open_views":  s.sessions.count(),
		"subscribers": s.hub.Subscribers(),
	})
}
