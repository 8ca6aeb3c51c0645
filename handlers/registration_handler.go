package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Dosada05/event-registration/services"
)

type RegistrationHandler struct {
	coordinator *services.Coordinator
}

func NewRegistrationHandler(c *services.Coordinator) *RegistrationHandler {
	return &RegistrationHandler{coordinator: c}
}

type registerInput struct {
	PaymentApproved bool `json:"payment_approved"`
}

// Register handles POST /events/{eventID}/register. The body is optional.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var input registerInput
	if err := readOptionalJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	res, err := h.coordinator.Register(r.Context(), auth, services.RegisterRequest{
		EventID:         eventID,
		PaymentApproved: input.PaymentApproved,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	response := jsonResponse{
		"registration": res.Registration,
		"ticket_id":    res.Ticket.ID,
		"token":        res.Ticket.Token,
	}
	if res.Ticket.PassURL != "" {
		response["pass_url"] = res.Ticket.PassURL
	}
	if err := writeJSON(w, status, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Cancel handles DELETE /events/{eventID}/registration.
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	reg, err := h.coordinator.CancelRegistration(r.Context(), auth, eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RegistrationHandler) MySeats(w http.ResponseWriter, r *http.Request) {
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	seats, err := h.coordinator.Seats(r.Context(), auth)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"seats": seats}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type checkInInput struct {
	Token string `json:"token"`
}

// CheckIn handles POST /checkin for the event's organizer.
func (h *RegistrationHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	auth, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	var input checkInInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.Token = strings.TrimSpace(input.Token)
	if input.Token == "" {
		badRequestResponse(w, r, errors.New("token is required"))
		return
	}

	res, err := h.coordinator.CheckIn(r.Context(), auth, input.Token)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	response := jsonResponse{
		"ticket_id":          res.Ticket.ID,
		"event_id":           res.Ticket.EventID,
		"participant_id":     res.Ticket.ParticipantID,
		"via":                res.Via,
		"checked_in_at":      res.Ticket.CheckedInAt,
		"already_checked_in": res.AlreadyCheckedIn,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
