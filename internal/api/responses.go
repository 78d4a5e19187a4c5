package api

import (
	"encoding/json"
	"net/http"
	"time"

	"example.com/fitnesscenter/internal/domain"
)

// MemberView is the public representation of a member.
type MemberView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   *int   `json:"age"`
}

// WorkoutView is a workout session as listed by GET /workouts.
type WorkoutView struct {
	ID          int64  `json:"id"`
	MemberID    int64  `json:"member_id"`
	WorkoutType string `json:"workout_type"`
	Date        string `json:"date"`
	Duration    *int   `json:"duration"`
}

// MemberWorkoutView is a session listed under its member, so the owner id is implied.
type MemberWorkoutView struct {
	ID          int64  `json:"id"`
	WorkoutType string `json:"workout_type"`
	Date        string `json:"date"`
	Duration    *int   `json:"duration"`
}

// MessageResponse confirms a write. The stored row is echoed where one exists.
type MessageResponse struct {
	Message string       `json:"message"`
	Member  *MemberView  `json:"member,omitempty"`
	Workout *WorkoutView `json:"workout,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Type   string              `json:"type"`
	Detail string              `json:"detail"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}

func toMemberView(m domain.Member) MemberView {
	return MemberView{ID: m.ID, Name: m.Name, Email: m.Email, Age: m.Age}
}

func toWorkoutView(s domain.WorkoutSession) WorkoutView {
	return WorkoutView{
		ID:          s.ID,
		MemberID:    s.MemberID,
		WorkoutType: s.WorkoutType,
		Date:        s.Date.Format(time.DateOnly),
		Duration:    s.Duration,
	}
}

func toMemberWorkoutView(s domain.WorkoutSession) MemberWorkoutView {
	return MemberWorkoutView{
		ID:          s.ID,
		WorkoutType: s.WorkoutType,
		Date:        s.Date.Format(time.DateOnly),
		Duration:    s.Duration,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, ErrorResponse{Type: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
