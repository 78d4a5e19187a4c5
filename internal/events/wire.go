package events

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kafka record headers set by the outbox dispatcher.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
)

const (
	magicByte  = 0
	headerSize = 5
)

// ErrShortFrame is returned when a record value cannot hold the framing header.
var ErrShortFrame = errors.New("record value shorter than wire header")

// EncodeFrame prefixes payload with the Confluent wire header: a zero magic
// byte followed by the big-endian schema id.
func EncodeFrame(schemaID int, payload []byte) []byte {
	frame := make([]byte, headerSize+len(payload))
	frame[0] = magicByte
	binary.BigEndian.PutUint32(frame[1:headerSize], uint32(schemaID))
	copy(frame[headerSize:], payload)
	return frame
}

// DecodeFrame splits a framed value into schema id and a copy of the payload.
func DecodeFrame(value []byte) (int, []byte, error) {
	if len(value) < headerSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(value))
	}
	if value[0] != magicByte {
		return 0, nil, fmt.Errorf("unexpected magic byte %#x", value[0])
	}
	schemaID := int(binary.BigEndian.Uint32(value[1:headerSize]))
	return schemaID, append([]byte(nil), value[headerSize:]...), nil
}
