package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Dosada05/tournament-engine/services"
	"github.com/jonboulle/clockwork"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
	clock             clockwork.Clock
}

func NewTournamentHandler(ts services.TournamentService, clock clockwork.Clock) *TournamentHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TournamentHandler{tournamentService: ts, clock: clock}
}

// GetBracketHandler handles GET /tournaments/{tournamentID}/bracket
func (h *TournamentHandler) GetBracketHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	bracket, err := h.tournamentService.GetBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"bracket": bracket}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type finalizeInput struct {
	WinnerID *int `json:"winner_id"`
}

// FinalizeHandler handles POST /tournaments/{tournamentID}/finalize
func (h *TournamentHandler) FinalizeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input finalizeInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.WinnerID != nil && *input.WinnerID <= 0 {
		badRequestResponse(w, r, errors.New("winner_id must be a positive player id"))
		return
	}

	if err := h.tournamentService.FinalizeTournament(r.Context(), id, input.WinnerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createRoundInput struct {
	Round       int        `json:"round"`
	PlayerIDs   []int      `json:"player_ids"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CreateRoundHandler handles POST /tournaments/{tournamentID}/rounds
func (h *TournamentHandler) CreateRoundHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input createRoundInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	scheduledAt := h.clock.Now()
	if input.ScheduledAt != nil {
		scheduledAt = *input.ScheduledAt
	}

	battles, err := h.tournamentService.CreateBattlesForRound(r.Context(), id, input.PlayerIDs, input.Round, scheduledAt)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"battles": battles}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
