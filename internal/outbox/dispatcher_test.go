package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fitnesscenter/internal/events"
)

func TestBuildRecordFramesPayloadAndSetsHeaders(t *testing.T) {
	at := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)
	msg := Message{
		EventID:       3,
		AggregateType: "member",
		AggregateID:   7,
		EventType:     events.TypeMemberCreated,
		Topic:         "member_events",
		SchemaSubject: "member_events-value",
		PartitionKey:  "7",
		Payload:       json.RawMessage(`{"member_id":7}`),
	}

	record := buildRecord(msg, 12, at)

	require.Equal(t, []byte("7"), record.Key)
	require.Equal(t, at, record.Time)

	schemaID, payload, err := events.DecodeFrame(record.Value)
	require.NoError(t, err)
	require.Equal(t, 12, schemaID)
	require.JSONEq(t, `{"member_id":7}`, string(payload))

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeMemberCreated, headers[events.HeaderEventType])
	require.Equal(t, "member_events-value", headers[events.HeaderSchemaSubject])
}

func TestSchemaCatalogCoversEveryEventType(t *testing.T) {
	for _, eventType := range []string{
		events.TypeMemberCreated,
		events.TypeMemberUpdated,
		events.TypeMemberDeleted,
		events.TypeWorkoutScheduled,
	} {
		schema, ok := schemaCatalog[eventType]
		require.Truef(t, ok, "missing schema for %s", eventType)
		require.Truef(t, json.Valid([]byte(schema)), "schema for %s is not valid JSON", eventType)
	}
}

func TestDeliverCachesSchemaIDsAndGroupsByTopic(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 5}
	d := NewDispatcher(nil, producer, registry, zerolog.Nop(), time.Second, 10)

	batch := []Message{
		{EventID: 1, EventType: events.TypeMemberCreated, Topic: "member_events", SchemaSubject: "member_events-value", PartitionKey: "1", Payload: json.RawMessage(`{}`)},
		{EventID: 2, EventType: events.TypeWorkoutScheduled, Topic: "workout_events", SchemaSubject: "workout_events-value", PartitionKey: "1", Payload: json.RawMessage(`{}`)},
		{EventID: 3, EventType: events.TypeMemberUpdated, Topic: "member_events", SchemaSubject: "member_events-value", PartitionKey: "1", Payload: json.RawMessage(`{}`)},
		{EventID: 4, EventType: events.TypeMemberUpdated, Topic: "member_events", SchemaSubject: "member_events-value", PartitionKey: "1", Payload: json.RawMessage(`{}`)},
	}

	require.NoError(t, d.deliver(context.Background(), batch))

	require.Len(t, producer.writes, 2)
	require.Equal(t, "member_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 3)
	require.Equal(t, "workout_events", producer.writes[1].topic)
	require.Len(t, registry.calls, 3, "one registry lookup per subject and event type")
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 5}
	d := NewDispatcher(nil, producer, registry, zerolog.Nop(), time.Second, 10)

	err := d.deliver(context.Background(), []Message{{EventID: 1, EventType: "member.renamed", Topic: "member_events"}})

	require.ErrorContains(t, err, "no schema metadata for event_type=member.renamed")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/member_events-value/versions/latest":
			if !registered.Load() {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error_code":40401,"message":"Subject not found."}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":31,"version":1}`))
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/member_events-value/versions":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "JSON", body["schemaType"])
			registered.Store(true)
			_, _ = w.Write([]byte(`{"id":31}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")

	id, err := client.EnsureSchema(context.Background(), "member_events-value", memberChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 31, id)
	require.True(t, registered.Load())

	id, err = client.EnsureSchema(context.Background(), "member_events-value", memberChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 31, id)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("registry down"))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "member_events-value", memberChangedSchema)
	require.ErrorContains(t, err, "registry down")
}

type stubProducer struct {
	mu       sync.Mutex
	err      error
	attempts int
	writes   []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, subject)
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}
