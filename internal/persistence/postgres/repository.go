package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fitnesscenter/internal/domain"
	"example.com/fitnesscenter/internal/events"
)

const (
	memberColumns  = `id, name, email, age`
	workoutColumns = `id, member_id, workout_type, date, duration`
)

// Repository provides Postgres-backed persistence for members, workout sessions and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// CreateMember inserts the member and records a member.created event in one transaction.
func (r *Repository) CreateMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	var stored domain.Member
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO member (name, email, age) VALUES ($1, $2, $3) RETURNING `+memberColumns,
			member.Name, member.Email, member.Age)
		if err := scanMember(row, &stored); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, stored.ID, stored.ID, events.TypeMemberCreated, memberChanged(stored, r.now()))
	})
	if err != nil {
		return domain.Member{}, classify(err)
	}
	return stored, nil
}

// GetMember retrieves a member by ID, returning nil when it does not exist.
func (r *Repository) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM member WHERE id = $1`, id)
	var member domain.Member
	if err := scanMember(row, &member); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// ListMembers returns all members ordered by id.
func (r *Repository) ListMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM member ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Member, 0)
	for rows.Next() {
		var member domain.Member
		if err := scanMember(rows, &member); err != nil {
			return nil, err
		}
		results = append(results, member)
	}
	return results, rows.Err()
}

// UpdateMember writes only the columns present in patch.
func (r *Repository) UpdateMember(ctx context.Context, id int64, patch domain.MemberPatch) (*domain.Member, error) {
	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		return r.GetMember(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE member SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), memberColumns)

	var stored domain.Member
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := scanMember(tx.QueryRow(ctx, query, args...), &stored); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrMemberNotFound
			}
			return err
		}
		return r.insertOutbox(ctx, tx, stored.ID, stored.ID, events.TypeMemberUpdated, memberChanged(stored, r.now()))
	})
	if err != nil {
		return nil, classify(err)
	}
	return &stored, nil
}

// DeleteMember removes a member; workout_session rows follow through ON DELETE CASCADE.
func (r *Repository) DeleteMember(ctx context.Context, id int64) error {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM member WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrMemberNotFound
		}
		return r.insertOutbox(ctx, tx, id, id, events.TypeMemberDeleted, events.MemberDeleted{
			MemberID:   id,
			OccurredAt: r.now(),
		})
	})
	return classify(err)
}

// CreateWorkout inserts a session. A member_id without a member row fails the foreign key.
func (r *Repository) CreateWorkout(ctx context.Context, session domain.WorkoutSession) (domain.WorkoutSession, error) {
	var stored domain.WorkoutSession
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO workout_session (member_id, workout_type, date, duration) VALUES ($1, $2, $3, $4) RETURNING `+workoutColumns,
			session.MemberID, session.WorkoutType, session.Date, session.Duration)
		if err := scanWorkout(row, &stored); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, stored.ID, stored.MemberID, events.TypeWorkoutScheduled, events.WorkoutScheduled{
			WorkoutID:   stored.ID,
			MemberID:    stored.MemberID,
			WorkoutType: stored.WorkoutType,
			Date:        stored.Date.Format(time.DateOnly),
			Duration:    stored.Duration,
			OccurredAt:  r.now(),
		})
	})
	if err != nil {
		return domain.WorkoutSession{}, classify(err)
	}
	return stored, nil
}

// ListWorkouts returns every session ordered by id.
func (r *Repository) ListWorkouts(ctx context.Context) ([]domain.WorkoutSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workoutColumns+` FROM workout_session ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectWorkouts(rows)
}

// ListWorkoutsForMember returns the member's sessions, or ErrMemberNotFound when the member is absent.
func (r *Repository) ListWorkoutsForMember(ctx context.Context, memberID int64) ([]domain.WorkoutSession, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM member WHERE id = $1)`, memberID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrMemberNotFound
	}

	rows, err := tx.Query(ctx, `SELECT `+workoutColumns+` FROM workout_session WHERE member_id = $1 ORDER BY id`, memberID)
	if err != nil {
		return nil, err
	}
	results, err := collectWorkouts(rows)
	if err != nil {
		return nil, err
	}
	return results, tx.Commit(ctx)
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// insertOutbox records an event row. Events are partitioned by member so a
// member's history is delivered in order.
func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, memberID int64, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		strconv.FormatInt(memberID, 10),
		body,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner, m *domain.Member) error {
	return row.Scan(&m.ID, &m.Name, &m.Email, &m.Age)
}

func scanWorkout(row rowScanner, s *domain.WorkoutSession) error {
	return row.Scan(&s.ID, &s.MemberID, &s.WorkoutType, &s.Date, &s.Duration)
}

func collectWorkouts(rows pgx.Rows) ([]domain.WorkoutSession, error) {
	defer rows.Close()

	results := make([]domain.WorkoutSession, 0)
	for rows.Next() {
		var session domain.WorkoutSession
		if err := scanWorkout(rows, &session); err != nil {
			return nil, err
		}
		results = append(results, session)
	}
	return results, rows.Err()
}

func patchAssignments(patch domain.MemberPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name.Set {
		add("name", patch.Name.Value)
	}
	if patch.Email.Set {
		add("email", patch.Email.Value)
	}
	if patch.Age.Set {
		add("age", patch.Age.Value)
	}
	return sets, args
}

func memberChanged(m domain.Member, at time.Time) events.MemberChanged {
	return events.MemberChanged{
		MemberID:   m.ID,
		Name:       m.Name,
		Email:      m.Email,
		Age:        m.Age,
		OccurredAt: at,
	}
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeMemberCreated: {
		AggregateType: "member",
		Topic:         "member_events",
		SchemaSubject: "member_events-value",
	},
	events.TypeMemberUpdated: {
		AggregateType: "member",
		Topic:         "member_events",
		SchemaSubject: "member_events-value",
	},
	events.TypeMemberDeleted: {
		AggregateType: "member",
		Topic:         "member_events",
		SchemaSubject: "member_deleted-value",
	},
	events.TypeWorkoutScheduled: {
		AggregateType: "workout_session",
		Topic:         "workout_events",
		SchemaSubject: "workout_events-value",
	},
}
