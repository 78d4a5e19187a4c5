// Package events defines the payloads published for member and workout changes.
package events

import "time"

// Event types written to the outbox.
const (
	TypeMemberCreated    = "member.created"
	TypeMemberUpdated    = "member.updated"
	TypeMemberDeleted    = "member.deleted"
	TypeWorkoutScheduled = "workout.scheduled"
)

// MemberChanged is emitted when a member is created or updated and carries the stored row.
type MemberChanged struct {
	MemberID   int64     `json:"member_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Age        *int      `json:"age"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MemberDeleted is emitted when a member and its sessions are removed.
type MemberDeleted struct {
	MemberID   int64     `json:"member_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WorkoutScheduled is emitted when a session is booked for a member.
type WorkoutScheduled struct {
	WorkoutID   int64     `json:"workout_id"`
	MemberID    int64     `json:"member_id"`
	WorkoutType string    `json:"workout_type"`
	Date        string    `json:"date"`
	Duration    *int      `json:"duration"`
	OccurredAt  time.Time `json:"occurred_at"`
}
