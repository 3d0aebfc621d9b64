package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-engine/middleware"
	"github.com/Dosada05/tournament-engine/services"
)

type BattleHandler struct {
	battleService services.BattleService
}

func NewBattleHandler(bs services.BattleService) *BattleHandler {
	return &BattleHandler{battleService: bs}
}

// ReportResultHandler handles PATCH /battles/{battleID}
func (h *BattleHandler) ReportResultHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to report a battle result")
		return
	}

	id, err := getIDFromURL(r, "battleID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.BattleUpdate
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	battle, err := h.battleService.ReportResult(r.Context(), id, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "battle result reported",
		slog.Int("battle_id", id),
		slog.Int("user_id", currentUserID),
		slog.String("status", string(battle.Status)),
	)

	if err := writeJSON(w, http.StatusOK, jsonResponse{"battle": battle}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
