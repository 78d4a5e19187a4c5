package outbox

import "example.com/fitnesscenter/internal/events"

const memberChangedSchema = `{
  "type": "object",
  "title": "MemberChanged",
  "properties": {
    "member_id": {"type": "integer"},
    "name": {"type": "string", "maxLength": 100},
    "email": {"type": "string", "format": "email", "maxLength": 100},
    "age": {"type": ["integer", "null"], "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["member_id", "name", "email", "age", "occurred_at"],
  "additionalProperties": false
}`

const memberDeletedSchema = `{
  "type": "object",
  "title": "MemberDeleted",
  "properties": {
    "member_id": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["member_id", "occurred_at"],
  "additionalProperties": false
}`

const workoutScheduledSchema = `{
  "type": "object",
  "title": "WorkoutScheduled",
  "properties": {
    "workout_id": {"type": "integer"},
    "member_id": {"type": "integer"},
    "workout_type": {"type": "string", "maxLength": 50},
    "date": {"type": "string", "format": "date"},
    "duration": {"type": ["integer", "null"], "exclusiveMinimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["workout_id", "member_id", "workout_type", "date", "duration", "occurred_at"],
  "additionalProperties": false
}`

// schemaCatalog maps an outbox event type to the JSON schema registered for it.
var schemaCatalog = map[string]string{
	events.TypeMemberCreated:    memberChangedSchema,
	events.TypeMemberUpdated:    memberChangedSchema,
	events.TypeMemberDeleted:    memberDeletedSchema,
	events.TypeWorkoutScheduled: workoutScheduledSchema,
}
