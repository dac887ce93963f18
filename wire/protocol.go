// Package wire implements a framed request/response envelope: a 4-byte
// big-endian total length, a 1-byte message type, a 16-byte correlation
// id, and a variable-length UTF-8 JSON (or opaque) payload. The
// correlation id lets a client match an asynchronous response back to
// the request that produced it over a single long-lived connection.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// MessageType is the 1-byte tag identifying the kind of envelope carried.
type MessageType uint8

const (
	MessageHandshake MessageType = iota + 1
	MessagePing
	MessagePong
	MessageAuthentication
	MessageCommand
	MessageResponse
	MessageBulkOperation
	MessageError
)

func (t MessageType) String() string {
	switch t {
	case MessageHandshake:
		return "Handshake"
	case MessagePing:
		return "Ping"
	case MessagePong:
		return "Pong"
	case MessageAuthentication:
		return "Authentication"
	case MessageCommand:
		return "Command"
	case MessageResponse:
		return "Response"
	case MessageBulkOperation:
		return "BulkOperation"
	case MessageError:
		return "Error"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// HeaderSize is the fixed-size portion of every envelope: 4 bytes of
// length, 1 byte of type, 16 bytes of correlation id.
const HeaderSize = 4 + 1 + 16

// lengthFieldSize is the size of the "total length" field itself. That
// on-wire field counts everything after it (type + correlation id +
// payload), matching the "4-byte big-endian total length" prose in §6;
// the decoded Header.Length holds the payload length only.
const lengthFieldSize = 4

// Header is the fixed-size preamble of every wire message.
type Header struct {
	Type  MessageType
	CorrID uuid.UUID
	// Length is the byte length of the payload that follows the header.
	Length uint32
}

// Envelope pairs a decoded header with its raw payload bytes.
type Envelope struct {
	Header  Header
	Payload []byte
}

// NewCorrelationID mints a fresh correlation id for an outbound request.
func NewCorrelationID() uuid.UUID {
	return uuid.New()
}

// WriteMessage frames and writes one envelope: msgType, corrID, and the
// JSON encoding of payload (payload may be nil for a bodiless message like
// Ping/Pong).
func WriteMessage(w io.Writer, msgType MessageType, corrID uuid.UUID, payload interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("wire: marshal payload: %w", err)
		}
	}
	return WriteRaw(w, msgType, corrID, body)
}

// WriteRaw frames and writes one envelope whose payload is already-encoded
// bytes (used when relaying an opaque body without re-marshalling it).
func WriteRaw(w io.Writer, msgType MessageType, corrID uuid.UUID, body []byte) error {
	totalLen := uint32(1 + 16 + len(body))
	buf := make([]byte, lengthFieldSize+1+16)
	binary.BigEndian.PutUint32(buf[0:4], totalLen)
	buf[4] = byte(msgType)
	copy(buf[5:21], corrID[:])
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("wire: write payload: %w", err)
		}
	}
	return nil
}

// ReadEnvelope reads one complete framed message from r.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	lenBuf := make([]byte, lengthFieldSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	totalLen := binary.BigEndian.Uint32(lenBuf)
	if totalLen < 17 {
		return nil, fmt.Errorf("wire: message length %d shorter than type+correlation id", totalLen)
	}

	rest := make([]byte, totalLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}

	var corrID uuid.UUID
	copy(corrID[:], rest[1:17])
	return &Envelope{
		Header: Header{
			Type:   MessageType(rest[0]),
			CorrID: corrID,
			Length: uint32(len(rest) - 17),
		},
		Payload: rest[17:],
	}, nil
}

// Decode unmarshals an envelope's JSON payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
