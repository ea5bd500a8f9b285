package serializer

import (
	"github.com/ValentinKolb/rconn/rpc/common"
	"strings"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IBodySerializer{
	"json": NewJSONSerializer,
	"gob":  NewGOBSerializer,
}

// TestSerializerRoundTrip tests that packet payloads survive encoding
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			if s.Name() != name {
				t.Errorf("expected name %s, got %s", name, s.Name())
			}

			ping := common.PacketPing{Num: 1, Str: "Hello, Server!"}
			data, err := s.Serialize(ping)
			if err != nil {
				t.Fatalf("failed to serialize: %v", err)
			}

			var got common.PacketPing
			if err := s.Deserialize(data, &got); err != nil {
				t.Fatalf("failed to deserialize: %v", err)
			}
			if got != ping {
				t.Errorf("expected %+v, got %+v", ping, got)
			}
		})
	}
}

// TestJSONPingBody checks the body of the reference PING packet
func TestJSONPingBody(t *testing.T) {
	data, err := NewJSONSerializer().Serialize(common.PacketPing{Num: 1, Str: "Hello, Server!"})
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	if !strings.Contains(body, `"Num":1`) || !strings.Contains(body, `"Str":"Hello, Server!"`) {
		t.Errorf("unexpected body %s", body)
	}
}

// TestDeserializeGarbage tests that invalid bodies are rejected
func TestDeserializeGarbage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var p common.PacketPong
			if err := factory().Deserialize([]byte{0xff, 0x00, 0x13}, &p); err == nil {
				t.Error("expected an error for garbage input")
			}
		})
	}
}

// TestNew tests the lookup by name
func TestNew(t *testing.T) {
	if s, ok := New("json"); !ok || s.Name() != "json" {
		t.Error("json serializer not found")
	}
	if s, ok := New("gob"); !ok || s.Name() != "gob" {
		t.Error("gob serializer not found")
	}
	if _, ok := New("binary"); ok {
		t.Error("unknown serializer should not be found")
	}
}
