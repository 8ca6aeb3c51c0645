package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/Dosada05/event-registration/services"
)

type EventHandler struct {
	eventService *services.EventService
}

func NewEventHandler(es *services.EventService) *EventHandler {
	return &EventHandler{eventService: es}
}

type createEventInput struct {
	Name                 string           `json:"name"`
	Kind                 models.EventKind `json:"kind"`
	RegistrationLimit    int              `json:"registration_limit"`
	RegistrationDeadline time.Time        `json:"registration_deadline"`
	StartsAt             time.Time        `json:"starts_at"`
	EndsAt               time.Time        `json:"ends_at"`
	MaxTeamSize          int              `json:"max_team_size"`
	RequiresApproval     bool             `json:"requires_approval"`
}

func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	var input createEventInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	event, err := h.eventService.Create(r.Context(), auth, services.CreateEventInput{
		Name:                 input.Name,
		Kind:                 input.Kind,
		RegistrationLimit:    input.RegistrationLimit,
		RegistrationDeadline: input.RegistrationDeadline,
		StartsAt:             input.StartsAt,
		EndsAt:               input.EndsAt,
		MaxTeamSize:          input.MaxTeamSize,
		RequiresApproval:     input.RequiresApproval,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"event": event}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	event, err := h.eventService.Get(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"event": event}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *EventHandler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.eventService.Publish)
}

func (h *EventHandler) CloseEvent(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.eventService.Close)
}

type statusChange func(ctx context.Context, auth models.AuthContext, id string) (*models.Event, error)

func (h *EventHandler) changeStatus(w http.ResponseWriter, r *http.Request, change statusChange) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	event, err := change(r.Context(), auth, eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"event": event}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	regs, err := h.eventService.ListRegistrations(r.Context(), auth, eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registrations": regs}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
