package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const defaultArchiveLimit = 50

type selectColorRequest struct {
	Color string `json:"color"`
}

type selectStakeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ActionResponse is returned by every POST action.
type ActionResponse struct {
	Accepted bool     `json:"accepted"`
	Error    string   `json:"error,omitempty"`
	State    Snapshot `json:"state"`
}

// Routes returns the gateway's HTTP surface.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/info", s.handleInfo)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleGetState)
		r.Post("/select-color", s.handleSelectColor)
		r.Post("/select-stake", s.handleSelectStake)
		r.Post("/bet", s.handlePlaceBet)
		r.Post("/reset", s.handleReset)
		r.Get("/archive", s.handleArchive)
	})

	r.Get("/ws/game", s.handleConnection)
	return r
}

func (s *Service) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":      "colorclash",
		"version":      s.cfg.Version,
		"connections":  s.Connections(),
		"online_users": s.onlineUsers.Load(),
		"uptime_sec":   int(s.clock.Since(s.startedAt) / time.Second),
	})
}

// handleGetState handles GET /api/state
func (s *Service) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// handleSelectColor handles POST /api/select-color
func (s *Service) handleSelectColor(w http.ResponseWriter, r *http.Request) {
	var req selectColorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := s.SelectColor(r.Context(), req.Color)
	writeAction(w, resp, err)
}

// handleSelectStake handles POST /api/select-stake
func (s *Service) handleSelectStake(w http.ResponseWriter, r *http.Request) {
	var req selectStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := s.SelectStake(r.Context(), req.Amount)
	writeAction(w, resp, err)
}

// handlePlaceBet handles POST /api/bet
func (s *Service) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	writeAction(w, s.PlaceBet(r.Context()), nil)
}

// handleReset handles POST /api/reset
func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	writeAction(w, s.ResetSelection(r.Context()), nil)
}

func writeAction(w http.ResponseWriter, resp ActionResponse, err error) {
	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleArchive handles GET /api/archive?limit=N
func (s *Service) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}

	limit := defaultArchiveLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list archived rounds")
		http.Error(w, "failed to list archived rounds", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleConnection handles GET /ws/game. Every socket is one presence
// session; the first frame it receives is a Snapshot.
func (s *Service) handleConnection(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous-" + uuid.NewString()
	}

	session, err := s.presence.RegisterSession(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to register presence session")
		http.Error(w, "failed to register session", http.StatusInternalServerError)
		return
	}

	conn, err := s.connectionManager.UpgradeConnection(w, r, userID, session)
	if err != nil {
		// the upgrader has already written the HTTP error
		log.Error().Err(err).Str("user_id", userID).Msg("failed to upgrade WebSocket connection")
		if endErr := session.End(r.Context()); endErr != nil {
			log.Warn().Err(endErr).Msg("failed to end presence session")
		}
		return
	}

	if data, ok := s.encode(string(MessageTypeSnapshot), s.Snapshot()); ok {
		s.connectionManager.SendTo(conn, data)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
