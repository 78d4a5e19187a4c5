package api

import (
	"bytes"
	"encoding/json"
	"time"

	"example.com/fitnesscenter/internal/domain"
	"example.com/fitnesscenter/internal/validation"
)

// CreateMemberRequest is the payload for POST /members.
type CreateMemberRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=100"`
	Age   *int   `json:"age" validate:"omitnil,min=0,max=150"`
}

// Validate ensures request correctness.
func (r CreateMemberRequest) Validate() error {
	return validation.Struct(r)
}

func (r CreateMemberRequest) toInput() domain.CreateMemberInput {
	return domain.CreateMemberInput{Name: r.Name, Email: r.Email, Age: r.Age}
}

// UpdateMemberRequest is the payload for PUT /members/{id}. Only the keys
// present in the body are applied.
type UpdateMemberRequest struct {
	Name  Optional[string] `json:"name"`
	Email Optional[string] `json:"email"`
	Age   Optional[int]    `json:"age"`
}

type memberFields struct {
	Name  *string `json:"name" validate:"omitnil,max=100"`
	Email *string `json:"email" validate:"omitnil,email,max=100"`
	Age   *int    `json:"age" validate:"omitnil,min=0,max=150"`
}

// Validate checks the format of the fields that carry a value.
func (r UpdateMemberRequest) Validate() error {
	return validation.Struct(memberFields{
		Name:  r.Name.ptr(),
		Email: r.Email.ptr(),
		Age:   r.Age.ptr(),
	})
}

func (r UpdateMemberRequest) toPatch() domain.MemberPatch {
	return domain.MemberPatch{
		Name:  r.Name.override(),
		Email: r.Email.override(),
		Age:   r.Age.override(),
	}
}

// ScheduleWorkoutRequest is the payload for POST /workouts.
type ScheduleWorkoutRequest struct {
	MemberID    *int64 `json:"member_id" validate:"required,gt=0"`
	WorkoutType string `json:"workout_type" validate:"required,max=50"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Duration    *int   `json:"duration" validate:"required,gt=0,max=1440"`
}

// Validate ensures request correctness.
func (r ScheduleWorkoutRequest) Validate() error {
	return validation.Struct(r)
}

func (r ScheduleWorkoutRequest) toInput() domain.ScheduleWorkoutInput {
	// Validate has already checked the layout.
	date, _ := time.Parse(time.DateOnly, r.Date)
	return domain.ScheduleWorkoutInput{
		MemberID:    *r.MemberID,
		WorkoutType: r.WorkoutType,
		Date:        date,
		Duration:    r.Duration,
	}
}

// Optional is a JSON field that distinguishes an absent key from an explicit null.
type Optional[T any] struct {
	Present bool
	Null    bool
	Value   T
}

// UnmarshalJSON only runs when the key is present, including for a literal null.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) ptr() *T {
	if !o.Present || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

func (o Optional[T]) override() domain.Override[T] {
	switch {
	case !o.Present:
		return domain.Keep[T]()
	case o.Null:
		return domain.Clear[T]()
	default:
		return domain.SetTo(o.Value)
	}
}
