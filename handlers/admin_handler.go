package handlers

import (
	"context"
	"net/http"

	"github.com/Dosada05/tournament-engine/services"
)

// QualificationCloser closes one tournament's qualification phase on demand.
type QualificationCloser interface {
	Finalize(ctx context.Context, tournamentID int) (services.QualificationOutcome, error)
}

// AdvanceDispatcher queues an advancement check for a tournament.
type AdvanceDispatcher interface {
	EnqueueAdvanceRound(ctx context.Context, tournamentID int) error
}

type AdminHandler struct {
	qualification QualificationCloser
	dispatcher    AdvanceDispatcher
}

func NewAdminHandler(qc QualificationCloser, d AdvanceDispatcher) *AdminHandler {
	return &AdminHandler{qualification: qc, dispatcher: d}
}

// CloseQualificationHandler handles POST /tournaments/{tournamentID}/qualification/close
func (h *AdminHandler) CloseQualificationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.qualification.Finalize(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcome": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AdvanceHandler handles POST /tournaments/{tournamentID}/advance. The check
// runs on the job queue, so the response only confirms it was queued.
func (h *AdminHandler) AdvanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.dispatcher.EnqueueAdvanceRound(r.Context(), id); err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusAccepted, jsonResponse{"status": "queued"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
