package domain

import "time"

// Member is a registered fitness-center client.
type Member struct {
	ID    int64
	Name  string
	Email string
	Age   *int
}

// MaxWorkoutMinutes bounds a single session to one day.
const MaxWorkoutMinutes = 24 * 60

// WorkoutSession is a scheduled exercise activity owned by exactly one member.
type WorkoutSession struct {
	ID          int64
	MemberID    int64
	WorkoutType string
	Date        time.Time
	Duration    *int
}

// Override carries one field of a partial update. Set reports whether the
// field was present in the request; a nil Value with Set clears the field.
type Override[T any] struct {
	Set   bool
	Value *T
}

// Keep returns an Override that leaves the stored value untouched.
func Keep[T any]() Override[T] {
	return Override[T]{}
}

// SetTo returns an Override that replaces the stored value with v.
func SetTo[T any](v T) Override[T] {
	return Override[T]{Set: true, Value: &v}
}

// Clear returns an Override that nulls the stored value.
func Clear[T any]() Override[T] {
	return Override[T]{Set: true}
}

// MemberPatch describes a partial member update.
type MemberPatch struct {
	Name  Override[string]
	Email Override[string]
	Age   Override[int]
}

// Empty reports whether the patch changes nothing.
func (p MemberPatch) Empty() bool {
	return !p.Name.Set && !p.Email.Set && !p.Age.Set
}

// Apply returns a copy of m with the present overrides applied.
func (p MemberPatch) Apply(m Member) Member {
	if p.Name.Set && p.Name.Value != nil {
		m.Name = *p.Name.Value
	}
	if p.Email.Set && p.Email.Value != nil {
		m.Email = *p.Email.Value
	}
	if p.Age.Set {
		if p.Age.Value == nil {
			m.Age = nil
		} else {
			age := *p.Age.Value
			m.Age = &age
		}
	}
	return m
}
