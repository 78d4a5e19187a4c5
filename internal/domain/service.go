// Package domain defines the business logic for the fitness center service.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/fitnesscenter/internal/observability"
)

// Repository captures persistence operations for members and their workout sessions.
type Repository interface {
	CreateMember(ctx context.Context, member Member) (Member, error)
	GetMember(ctx context.Context, id int64) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	UpdateMember(ctx context.Context, id int64, patch MemberPatch) (*Member, error)
	DeleteMember(ctx context.Context, id int64) error
	CreateWorkout(ctx context.Context, session WorkoutSession) (WorkoutSession, error)
	ListWorkouts(ctx context.Context) ([]WorkoutSession, error)
	ListWorkoutsForMember(ctx context.Context, memberID int64) ([]WorkoutSession, error)
	Ping(ctx context.Context) error
}

// Service orchestrates member and workout workflows.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateMemberInput captures the payload from the API layer.
type CreateMemberInput struct {
	Name  string
	Email string
	Age   *int
}

// ScheduleWorkoutInput captures the payload from the API layer.
type ScheduleWorkoutInput struct {
	MemberID    int64
	WorkoutType string
	Date        time.Time
	Duration    *int
}

// CreateMember registers a new member. Emails are unique across members.
func (s *Service) CreateMember(ctx context.Context, input CreateMemberInput) (*Member, error) {
	verr := &ValidationError{}
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" {
		verr.add("name", "is required")
	}
	if email == "" {
		verr.add("email", "is required")
	}
	if input.Age != nil && *input.Age < 0 {
		verr.add("age", "must not be negative")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	member, err := s.repo.CreateMember(ctx, Member{Name: name, Email: email, Age: input.Age})
	if err != nil {
		return nil, err
	}
	observability.RecordMemberCreated(time.Now())
	return &member, nil
}

// GetMember fetches by ID.
func (s *Service) GetMember(ctx context.Context, id int64) (*Member, error) {
	member, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// ListMembers returns every member in insertion order.
func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	return s.repo.ListMembers(ctx)
}

// UpdateMember applies a partial update. Fields absent from the patch are left untouched.
func (s *Service) UpdateMember(ctx context.Context, id int64, patch MemberPatch) (*Member, error) {
	verr := &ValidationError{}
	if patch.Name.Set {
		if patch.Name.Value == nil || strings.TrimSpace(*patch.Name.Value) == "" {
			verr.add("name", "must not be empty")
		} else {
			patch.Name = SetTo(strings.TrimSpace(*patch.Name.Value))
		}
	}
	if patch.Email.Set {
		if patch.Email.Value == nil || strings.TrimSpace(*patch.Email.Value) == "" {
			verr.add("email", "must not be empty")
		} else {
			patch.Email = SetTo(strings.TrimSpace(*patch.Email.Value))
		}
	}
	if patch.Age.Set && patch.Age.Value != nil && *patch.Age.Value < 0 {
		verr.add("age", "must not be negative")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	if patch.Empty() {
		return s.GetMember(ctx, id)
	}

	member, err := s.repo.UpdateMember(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	observability.RecordMemberUpdated(time.Now())
	return member, nil
}

// DeleteMember removes the member together with all of its workout sessions.
func (s *Service) DeleteMember(ctx context.Context, id int64) error {
	if err := s.repo.DeleteMember(ctx, id); err != nil {
		return err
	}
	observability.RecordMemberDeleted(time.Now())
	return nil
}

// ScheduleWorkout records a workout session for an existing member. The member
// is resolved before insert so no orphan session is ever written.
func (s *Service) ScheduleWorkout(ctx context.Context, input ScheduleWorkoutInput) (*WorkoutSession, error) {
	verr := &ValidationError{}
	workoutType := strings.TrimSpace(input.WorkoutType)
	if input.MemberID <= 0 {
		verr.add("member_id", "is required")
	}
	if workoutType == "" {
		verr.add("workout_type", "is required")
	}
	if input.Date.IsZero() {
		verr.add("date", "is required")
	}
	if input.Duration == nil {
		verr.add("duration", "is required")
	} else if *input.Duration <= 0 {
		verr.add("duration", "must be greater than 0")
	} else if *input.Duration > MaxWorkoutMinutes {
		verr.add("duration", fmt.Sprintf("must not exceed %d", MaxWorkoutMinutes))
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	member, err := s.repo.GetMember(ctx, input.MemberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrUnknownMember
	}

	y, m, d := input.Date.Date()
	session, err := s.repo.CreateWorkout(ctx, WorkoutSession{
		MemberID:    input.MemberID,
		WorkoutType: workoutType,
		Date:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Duration:    input.Duration,
	})
	if err != nil {
		return nil, err
	}
	observability.RecordWorkoutScheduled(time.Now())
	return &session, nil
}

// ListWorkouts returns every workout session in insertion order.
func (s *Service) ListWorkouts(ctx context.Context) ([]WorkoutSession, error) {
	return s.repo.ListWorkouts(ctx)
}

// ListMemberWorkouts returns the sessions owned by a member.
func (s *Service) ListMemberWorkouts(ctx context.Context, memberID int64) ([]WorkoutSession, error) {
	return s.repo.ListWorkoutsForMember(ctx, memberID)
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
