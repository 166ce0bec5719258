package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"RiskArena/internal/auth"
	"RiskArena/internal/game"
	"RiskArena/internal/model"
	"RiskArena/internal/store"
)

const maxBodyBytes = 1 << 16

// GameView is a game snapshot plus the time left in the open round.
type GameView struct {
	*model.Game
	TimeRemaining float64 `json:"time_remaining"`
}

// SessionResponse is returned when a player creates or joins a game.
type SessionResponse struct {
	Game  GameView `json:"game"`
	UID   string   `json:"uid"`
	Token string   `json:"token"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type joinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) view(g *model.Game) GameView {
	return GameView{Game: g, TimeRemaining: game.TimeRemaining(g, s.now()).Seconds()}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.games.Countries())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := strconv.ParseFloat(q.Get("amount"), 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "amount must be a number")
		return
	}
	seed := q.Get("seed")
	if seed == "" {
		seed = "preview"
	}
	res, err := s.games.Preview(chi.URLParam(r, "iso"), amount, seed)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !s.decode(w, r, &req) {
		return
	}
	uid := auth.NewUserID()
	g, err := s.games.CreateGame(r.Context(), uid, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, http.StatusCreated, uid, g)
}

// handleJoinGame reuses the caller's identity when a valid token for the same
// game is presented, so a reconnecting player keeps their seat.
func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}
	uid := auth.NewUserID()
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if id, err := s.auth.Verify(bearer); err == nil {
			if g, err := s.games.FindByCode(r.Context(), req.Code); err == nil && g.ID == id.GameID {
				uid = id.UserID
			}
		}
	}
	g, err := s.games.JoinGame(r.Context(), uid, req.Code, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, http.StatusOK, uid, g)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.games.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(g))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.games.Leaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.games.StartGame)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.games.NextRound)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.games.FinishGame)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.games.ResetGame)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	round, ok := s.roundParam(w, r)
	if !ok {
		return
	}
	var alloc model.Allocation
	if !s.decode(w, r, &alloc) {
		return
	}
	g, err := s.games.SubmitInvestment(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), round, alloc)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(g))
}

func (s *Server) handleCloseRound(w http.ResponseWriter, r *http.Request) {
	round, ok := s.roundParam(w, r)
	if !ok {
		return
	}
	g, err := s.games.CloseRound(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), round)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(g))
}

type gameAction func(ctx context.Context, uid, id string) (*model.Game, error)

func (s *Server) adminAction(w http.ResponseWriter, r *http.Request, fn gameAction) {
	g, err := fn(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(g))
}

func (s *Server) roundParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil || n < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid round number")
		return 0, false
	}
	return n, true
}

func (s *Server) writeSession(w http.ResponseWriter, status int, uid string, g *model.Game) {
	token, err := s.auth.Issue(uid, g.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to issue token")
		s.writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	s.writeJSON(w, status, SessionResponse{Game: s.view(g), UID: uid, Token: token})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, game.ErrUnknownCountry):
		return http.StatusNotFound
	case errors.Is(err, game.ErrNotAdmin), errors.Is(err, game.ErrNotPlayer):
		return http.StatusForbidden
	case errors.Is(err, game.ErrInvalidAllocation), errors.Is(err, game.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrGameNotWaiting),
		errors.Is(err, game.ErrGameNotActive),
		errors.Is(err, game.ErrRoundNotActive),
		errors.Is(err, game.ErrRoundStillOpen),
		errors.Is(err, game.ErrAlreadySubmitted),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		s.writeError(w, status, "internal error")
		return
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
