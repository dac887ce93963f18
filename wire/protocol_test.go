package wire

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	corrID := NewCorrelationID()
	payload := map[string]string{"hello": "world"}

	if err := WriteMessage(&buf, MessageCommand, corrID, payload); err != nil {
		t.Fatal(err)
	}

	env, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if env.Header.Type != MessageCommand {
		t.Fatalf("Type = %v, want MessageCommand", env.Header.Type)
	}
	if env.Header.CorrID != corrID {
		t.Fatalf("CorrID mismatch: got %v, want %v", env.Header.CorrID, corrID)
	}

	var decoded map[string]string
	if err := env.Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["hello"] != "world" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestWriteMessageNilPayload(t *testing.T) {
	var buf bytes.Buffer
	corrID := NewCorrelationID()
	if err := WriteMessage(&buf, MessagePing, corrID, nil); err != nil {
		t.Fatal(err)
	}
	env, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if env.Header.Type != MessagePing {
		t.Fatalf("Type = %v, want MessagePing", env.Header.Type)
	}
	if len(env.Payload) != 0 {
		t.Fatalf("Payload = %q, want empty", env.Payload)
	}
}

func TestReadEnvelopeSequence(t *testing.T) {
	var buf bytes.Buffer
	c1, c2 := NewCorrelationID(), NewCorrelationID()
	if err := WriteMessage(&buf, MessageHandshake, c1, HandshakeRequest{ProtocolVersion: 1}); err != nil {
		t.Fatal(err)
	}
	if err := WriteMessage(&buf, MessageCommand, c2, Command{Command: "get", Collection: "users", ID: "u1"}); err != nil {
		t.Fatal(err)
	}

	first, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if first.Header.CorrID != c1 {
		t.Fatalf("first CorrID mismatch")
	}

	second, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if second.Header.CorrID != c2 {
		t.Fatalf("second CorrID mismatch")
	}
	var cmd Command
	if err := second.Decode(&cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Collection != "users" || cmd.ID != "u1" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}
