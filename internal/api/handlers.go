// Package api exposes HTTP handlers for the fitness center service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"example.com/fitnesscenter/internal/domain"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	log     zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, log zerolog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/members", h.members)
	mux.HandleFunc("/members/{id}", h.memberByID)
	mux.HandleFunc("/members/{id}/workouts", h.memberWorkouts)
	mux.HandleFunc("/workouts", h.workouts)
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("/readyz", h.readyz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz fails while the backing store is unreachable.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.service.Ready(ctx); err != nil {
		h.log.Warn().Err(err).Msg("readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "store unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createMember(w, r)
	case http.MethodGet:
		h.listMembers(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) memberByID(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getMember(w, r, id)
	case http.MethodPut:
		h.updateMember(w, r, id)
	case http.MethodDelete:
		h.deleteMember(w, r, id)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (h *Handler) memberWorkouts(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	sessions, err := h.service.ListMemberWorkouts(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	items := make([]MemberWorkoutView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toMemberWorkoutView(s))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) workouts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.scheduleWorkout(w, r)
	case http.MethodGet:
		h.listWorkouts(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) createMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, r, err)
		return
	}

	member, err := h.service.CreateMember(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	view := toMemberView(*member)
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Member created successfully", Member: &view})
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	items := make([]MemberView, 0, len(members))
	for _, m := range members {
		items = append(items, toMemberView(m))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request, id int64) {
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberView(*member))
}

func (h *Handler) updateMember(w http.ResponseWriter, r *http.Request, id int64) {
	var req UpdateMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, r, err)
		return
	}

	member, err := h.service.UpdateMember(r.Context(), id, req.toPatch())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	view := toMemberView(*member)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Member updated successfully", Member: &view})
}

func (h *Handler) deleteMember(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Member deleted successfully"})
}

func (h *Handler) scheduleWorkout(w http.ResponseWriter, r *http.Request) {
	var req ScheduleWorkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, r, err)
		return
	}

	session, err := h.service.ScheduleWorkout(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	view := toWorkoutView(*session)
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Workout session scheduled successfully", Workout: &view})
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListWorkouts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	items := make([]WorkoutView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toWorkoutView(s))
	}
	writeJSON(w, http.StatusOK, items)
}

// respondError maps domain errors onto status codes. Unclassified errors are
// logged and reported without detail.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Type:   "validation_failed",
			Detail: "request validation failed",
			Errors: verr.Fields,
		})
	case errors.Is(err, domain.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "not_found", "member not found")
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrUnknownMember):
		writeError(w, http.StatusBadRequest, "unknown_member", err.Error())
	default:
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// memberID parses the {id} path segment. Anything that is not a positive
// integer cannot name a member, so it is reported as not found.
func memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not_found", "member not found")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		detail := "unable to parse body"
		if errors.Is(err, io.EOF) {
			detail = "request body is empty"
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			detail = typeErr.Field + " has the wrong type"
		}
		writeError(w, http.StatusBadRequest, "invalid_request", detail)
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
}
