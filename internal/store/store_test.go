package store

import (
	"testing"

	"github.com/pyr33x/goqtt/internal/packet"
	"github.com/pyr33x/goqtt/internal/retained"
)

func TestMemoryIsNoop(t *testing.T) {
	m := Memory{}
	if err := m.SaveRetained(&retained.Message{Topic: "a/b"}); err != nil {
		t.Errorf("SaveRetained() error = %v, want nil", err)
	}
	loaded, err := m.LoadRetained()
	if err != nil || loaded != nil {
		t.Errorf("LoadRetained() = (%v, %v), want (nil, nil)", loaded, err)
	}
}

func TestSQLiteSaveLoadDeleteRetained(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()

	msg := &retained.Message{Topic: "a/b", Payload: []byte("hello"), QoS: packet.QoSAtLeastOnce}
	if err := s.SaveRetained(msg); err != nil {
		t.Fatalf("SaveRetained() error = %v", err)
	}

	loaded, err := s.LoadRetained()
	if err != nil {
		t.Fatalf("LoadRetained() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0].Topic != "a/b" || string(loaded[0].Payload) != "hello" {
		t.Fatalf("LoadRetained() = %+v, want one message for a/b", loaded)
	}
	if loaded[0].QoS != packet.QoSAtLeastOnce {
		t.Errorf("QoS = %v, want %v", loaded[0].QoS, packet.QoSAtLeastOnce)
	}

	if err := s.DeleteRetained("a/b"); err != nil {
		t.Fatalf("DeleteRetained() error = %v", err)
	}
	loaded, err = s.LoadRetained()
	if err != nil {
		t.Fatalf("LoadRetained() error = %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("LoadRetained() after delete = %+v, want empty", loaded)
	}
}

func TestSQLiteUpsertOverwritesExisting(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()

	s.SaveRetained(&retained.Message{Topic: "a/b", Payload: []byte("first")})
	s.SaveRetained(&retained.Message{Topic: "a/b", Payload: []byte("second")})

	loaded, err := s.LoadRetained()
	if err != nil {
		t.Fatalf("LoadRetained() error = %v", err)
	}
	if len(loaded) != 1 || string(loaded[0].Payload) != "second" {
		t.Fatalf("LoadRetained() = %+v, want one message with payload %q", loaded, "second")
	}
}
