package protocol

import (
	"testing"
)

func TestNewAssignsIDForReplyTypes(t *testing.T) {
	env, err := New(TypeCommand, map[string]string{"action": "status"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if env.ID == "" {
		t.Error("command envelope should carry a correlation id")
	}
	if env.Timestamp == 0 {
		t.Error("envelope should carry a timestamp")
	}

	status, err := New(TypeStatus, map[string]string{"state": "idle"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if status.ID != "" {
		t.Errorf("status envelope got id %q, want none", status.ID)
	}
}

func TestDecodeRequiresType(t *testing.T) {
	if _, err := Decode([]byte(`{"id":"abc"}`)); err != ErrMissingType {
		t.Errorf("Decode without type = %v, want ErrMissingType", err)
	}

	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("Decode should fail on malformed JSON")
	}

	env, err := Decode([]byte(`{"type":"broadcast","data":{"changeType":"git"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Type != TypeBroadcast {
		t.Errorf("Type = %q, want %q", env.Type, TypeBroadcast)
	}
}

func TestPongEchoesPingID(t *testing.T) {
	ping := NewPing()
	if ping.ID == "" {
		t.Fatal("ping should carry an id")
	}

	pong := NewPong(ping)
	if pong.ID != ping.ID {
		t.Errorf("pong id = %q, want ping id %q", pong.ID, ping.ID)
	}
	if pong.Type != TypePong {
		t.Errorf("pong type = %q, want %q", pong.Type, TypePong)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := NewHandshake()
	if err != nil {
		t.Fatalf("NewHandshake failed: %v", err)
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back.Type != TypeHandshake {
		t.Errorf("Type = %q, want %q", back.Type, TypeHandshake)
	}

	var hs Handshake
	if err := UnmarshalData(back, &hs); err != nil {
		t.Fatalf("UnmarshalData failed: %v", err)
	}
	if hs.ProtocolVersion != Version {
		t.Errorf("ProtocolVersion = %q, want %q", hs.ProtocolVersion, Version)
	}
	if !hs.ClientCapabilities.OfflineMode || !hs.ClientCapabilities.MessageStatus {
		t.Error("handshake should announce full capabilities")
	}
}

func TestEnsureID(t *testing.T) {
	env := Envelope{Type: TypeCommand}
	id := env.EnsureID()
	if id == "" {
		t.Fatal("EnsureID returned empty id")
	}
	if env.EnsureID() != id {
		t.Error("EnsureID should be stable once assigned")
	}
}
