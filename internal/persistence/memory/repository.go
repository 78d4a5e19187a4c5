// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"example.com/fitnesscenter/internal/domain"
)

// Repository stores members and workout sessions in maps guarded by a single lock.
type Repository struct {
	mu            sync.RWMutex
	members       map[int64]domain.Member
	sessions      map[int64]domain.WorkoutSession
	nextMemberID  int64
	nextSessionID int64
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		members:  make(map[int64]domain.Member),
		sessions: make(map[int64]domain.WorkoutSession),
	}
}

// CreateMember implements domain.Repository.
func (r *Repository) CreateMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailInUse(member.Email, 0) {
		return domain.Member{}, domain.ErrEmailTaken
	}

	r.nextMemberID++
	member.ID = r.nextMemberID
	member.Age = copyInt(member.Age)
	r.members[member.ID] = member
	return cloneMember(member), nil
}

// GetMember returns the member or nil when absent.
func (r *Repository) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[id]
	if !ok {
		return nil, nil
	}
	out := cloneMember(member)
	return &out, nil
}

// ListMembers returns members ordered by id.
func (r *Repository) ListMembers(ctx context.Context) ([]domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Member, 0, len(r.members))
	for _, member := range r.members {
		out = append(out, cloneMember(member))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateMember applies the present fields of patch.
func (r *Repository) UpdateMember(ctx context.Context, id int64, patch domain.MemberPatch) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.members[id]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	updated := patch.Apply(member)
	if patch.Email.Set && r.emailInUse(updated.Email, id) {
		return nil, domain.ErrEmailTaken
	}
	r.members[id] = updated
	out := cloneMember(updated)
	return &out, nil
}

// DeleteMember removes the member and cascades to its workout sessions.
func (r *Repository) DeleteMember(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return domain.ErrMemberNotFound
	}
	delete(r.members, id)
	for sessionID, session := range r.sessions {
		if session.MemberID == id {
			delete(r.sessions, sessionID)
		}
	}
	return nil
}

// CreateWorkout inserts a session; the owning member must exist.
func (r *Repository) CreateWorkout(ctx context.Context, session domain.WorkoutSession) (domain.WorkoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[session.MemberID]; !ok {
		return domain.WorkoutSession{}, domain.ErrUnknownMember
	}

	r.nextSessionID++
	session.ID = r.nextSessionID
	session.Duration = copyInt(session.Duration)
	r.sessions[session.ID] = session
	return cloneSession(session), nil
}

// ListWorkouts returns sessions ordered by id.
func (r *Repository) ListWorkouts(ctx context.Context) ([]domain.WorkoutSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectSessions(func(domain.WorkoutSession) bool { return true }), nil
}

// ListWorkoutsForMember returns the member's sessions ordered by id.
func (r *Repository) ListWorkoutsForMember(ctx context.Context, memberID int64) ([]domain.WorkoutSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.members[memberID]; !ok {
		return nil, domain.ErrMemberNotFound
	}
	return r.collectSessions(func(s domain.WorkoutSession) bool { return s.MemberID == memberID }), nil
}

// Ping always succeeds.
func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *Repository) collectSessions(keep func(domain.WorkoutSession) bool) []domain.WorkoutSession {
	out := make([]domain.WorkoutSession, 0)
	for _, session := range r.sessions {
		if keep(session) {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// emailInUse must be called with the lock held. Comparison is case-insensitive.
func (r *Repository) emailInUse(email string, exceptID int64) bool {
	for id, member := range r.members {
		if id != exceptID && strings.EqualFold(member.Email, email) {
			return true
		}
	}
	return false
}

func cloneMember(m domain.Member) domain.Member {
	m.Age = copyInt(m.Age)
	return m
}

func cloneSession(s domain.WorkoutSession) domain.WorkoutSession {
	s.Duration = copyInt(s.Duration)
	return s
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
