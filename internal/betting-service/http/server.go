package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/betting-service/engine"
	"github.com/radieske/live-betting-engine/internal/betting-service/http/dto"
	"github.com/radieske/live-betting-engine/internal/betting-service/users"
)

// statusBettingError é o código que o bot entende como aposta recusada
const statusBettingError = 420

// Betting é o que a API usa do motor
type Betting interface {
	Bet(ctx context.Context, u *users.User, target string, amount int64) error
	RestartCountdown(timeout time.Duration) error
}

// Users resolve o apostador pelo nome da Twitch
type Users interface {
	GetOrCreate(ctx context.Context, twitchName string) (*users.User, error)
}

// API expõe os endpoints do bot de apostas do chat
type API struct {
	Log     *zap.Logger
	Betting Betting
	Users   Users
	Token   string // comparado com ?token=
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(a.requireToken)
		r.Post("/betbot/place", a.place)
		r.Post("/betbot/restart", a.restart)
		r.Get("/users/{twitch_name}/points", a.points)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if a.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.Token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) place(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TwitchName == "" || req.Target == "" || req.Amount == nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
		return
	}

	u, err := a.Users.GetOrCreate(r.Context(), req.TwitchName)
	if err != nil {
		a.Log.Error("load user", zap.String("twitch_name", req.TwitchName), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
		return
	}

	if err := a.Betting.Bet(r.Context(), u, string(req.Target), *req.Amount); err != nil {
		a.writeBettingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.StatusResponse{Status: "OK"})
}

// restart aceita corpo vazio ou inválido e usa a duração padrão nesse caso
func (a *API) restart(w http.ResponseWriter, r *http.Request) {
	var req dto.RestartRequest
	var timeout time.Duration
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	if err := a.Betting.RestartCountdown(timeout); err != nil {
		a.writeBettingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.StatusResponse{Status: "OK"})
}

func (a *API) points(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "twitch_name")
	u, err := a.Users.GetOrCreate(r.Context(), name)
	if err != nil {
		a.Log.Error("load user", zap.String("twitch_name", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
		return
	}

	points, allocated := u.Ledger.Snapshot()
	writeJSON(w, http.StatusOK, dto.PointsResponse{
		TwitchName: u.TwitchName,
		Points:     points,
		Allocated:  allocated,
		Available:  points - allocated,
	})
}

func (a *API) writeBettingError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsBusinessError(err):
		writeJSON(w, statusBettingError, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
	default:
		a.Log.Error("betting operation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}
