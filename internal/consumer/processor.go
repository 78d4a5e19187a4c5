// Package consumer reads member and workout events from Kafka and hands them
// to a Handler.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/fitnesscenter/internal/events"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Processor) {
		p.log = log
	}
}

// WithFetchBackoff sets the pause after a failed fetch.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) {
		p.fetchBackoff = d
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader       Reader
	handler      Handler
	log          zerolog.Logger
	fetchBackoff time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		log:          zerolog.Nop(),
		fetchBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
// A message is committed once handled or once it proves undecodable; handler
// failures leave it uncommitted.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Error().Err(err).Msg("fetch failed")
			if !sleep(ctx, p.fetchBackoff) {
				return ctx.Err()
			}
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.log.Warn().Err(decodeErr).
				Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).
				Msg("dropping undecodable message")
			recordRejected(msg.Topic)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.log.Error().Err(commitErr).Msg("commit after decode failure")
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.log.Error().Err(handleErr).
				Str("event_type", event.EventType).Str("topic", event.Topic).Int64("offset", event.Offset).
				Msg("handler failed")
			recordLogFailure(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.log.Error().Err(commitErr).Msg("commit failed")
			continue
		}
		recordLogged(event)
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, events.HeaderEventType)
	if !ok || len(eventType) == 0 {
		return Message{}, fmt.Errorf("missing %s header", events.HeaderEventType)
	}
	schemaSubject, _ := headerValue(msg, events.HeaderSchemaSubject)

	schemaID, payload, err := events.DecodeFrame(msg.Value)
	if err != nil {
		return Message{}, err
	}
	if !json.Valid(payload) {
		return Message{}, errors.New("payload is not valid JSON")
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
