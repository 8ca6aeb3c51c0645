package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Dosada05/event-registration/services"
	"github.com/go-chi/chi/v5"
)

type TeamHandler struct {
	coordinator *services.Coordinator
}

func NewTeamHandler(c *services.Coordinator) *TeamHandler {
	return &TeamHandler{coordinator: c}
}

type createTeamInput struct {
	Name       string `json:"name"`
	TargetSize int    `json:"target_size"`
}

// CreateTeam handles POST /events/{eventID}/teams. A leader who already has
// a team for the event gets that team back with 200.
func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var input createTeamInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	team, created, err := h.coordinator.CreateTeam(r.Context(), auth, services.CreateTeamRequest{
		EventID:    eventID,
		Name:       input.Name,
		TargetSize: input.TargetSize,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response := jsonResponse{
		"team_id":     team.ID,
		"invite_code": team.InviteCode,
	}
	if err := writeJSON(w, status, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type joinTeamInput struct {
	InviteCode string `json:"invite_code"`
}

func (h *TeamHandler) JoinTeam(w http.ResponseWriter, r *http.Request) {
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	var input joinTeamInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	code := strings.TrimSpace(input.InviteCode)
	if code == "" {
		badRequestResponse(w, r, errors.New("invite_code is required"))
		return
	}

	team, joined, err := h.coordinator.JoinTeam(r.Context(), auth, code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if joined {
		status = http.StatusCreated
	}
	if err := writeJSON(w, status, jsonResponse{"team_id": team.ID}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type ticketEntry struct {
	ParticipantID string `json:"participant_id"`
	TicketID      string `json:"ticket_id"`
	Token         string `json:"token,omitempty"`
}

// CompleteTeam handles POST /teams/{teamID}/complete for the team leader.
func (h *TeamHandler) CompleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	out, err := h.coordinator.CompleteTeam(r.Context(), auth, teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	tickets := make([]ticketEntry, 0, len(out.Tickets))
	for _, t := range out.Tickets {
		tickets = append(tickets, ticketEntry{ParticipantID: t.ParticipantID, TicketID: t.ID, Token: t.Token})
	}
	response := jsonResponse{
		"team_id": out.Team.ID,
		"tickets": tickets,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	memberID := strings.TrimSpace(chi.URLParam(r, "memberID"))
	if memberID == "" {
		badRequestResponse(w, r, errors.New("missing memberID in URL path"))
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	team, err := h.coordinator.RemoveMember(r.Context(), auth, teamID, memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TeamHandler) CancelTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	team, err := h.coordinator.CancelTeam(r.Context(), auth, teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RegenerateInvite handles POST /teams/{teamID}/invite. The old code stops
// working immediately.
func (h *TeamHandler) RegenerateInvite(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	team, err := h.coordinator.RegenerateInviteCode(r.Context(), auth, teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	response := jsonResponse{
		"team_id":     team.ID,
		"invite_code": team.InviteCode,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	team, err := h.coordinator.GetTeam(r.Context(), auth, teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
