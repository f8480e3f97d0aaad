package session

import (
	"testing"
	"time"

	"github.com/pyr33x/goqtt/internal/packet"
)

type fakeDeliverer struct {
	published []*packet.PublishPacket
	pubrels   []*packet.PubrelPacket
	closed    bool
}

func (f *fakeDeliverer) WritePublish(pub *packet.PublishPacket) error {
	f.published = append(f.published, pub)
	return nil
}

func (f *fakeDeliverer) WritePubrel(pubrel *packet.PubrelPacket) error {
	f.pubrels = append(f.pubrels, pubrel)
	return nil
}

func (f *fakeDeliverer) Close() error {
	f.closed = true
	return nil
}

func TestLifecycleTransitions(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)
	if s.State() != StateConnecting {
		t.Fatalf("initial state = %v, want Connecting", s.State())
	}

	d := &fakeDeliverer{}
	s.Activate(d)
	if s.State() != StateConnected {
		t.Fatalf("state after Activate = %v, want Connected", s.State())
	}

	s.CleanSession = false
	s.MarkDisconnected()
	if s.State() != StateDisconnected {
		t.Fatalf("state after MarkDisconnected (persistent) = %v, want Disconnected", s.State())
	}

	s.Destroy()
	if s.State() != StateDestroyed {
		t.Fatalf("state after Destroy = %v, want Destroyed", s.State())
	}
}

func TestMarkDisconnectedCleanSessionDestroys(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)
	s.Activate(&fakeDeliverer{})
	s.CleanSession = true

	s.MarkDisconnected()
	if s.State() != StateDestroyed {
		t.Fatalf("state after MarkDisconnected (clean) = %v, want Destroyed", s.State())
	}
}

func TestDeliverQoS0DoesNotTrackPending(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)
	d := &fakeDeliverer{}
	s.Activate(d)

	s.Deliver("a/b", []byte("hi"), 0, false, nil)

	if len(d.published) != 1 {
		t.Fatalf("published %d packets, want 1", len(d.published))
	}
	if d.published[0].PacketID != nil {
		t.Errorf("QoS 0 publish carries a packet id")
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 for QoS 0", s.PendingCount())
	}
}

func TestDeliverQoS1TracksPendingUntilAck(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)
	d := &fakeDeliverer{}
	s.Activate(d)

	s.Deliver("a/b", []byte("hi"), 1, false, nil)
	if s.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", s.PendingCount())
	}

	id := *d.published[0].PacketID
	s.HandlePubAck(id)
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() after HandlePubAck = %d, want 0", s.PendingCount())
	}
}

func TestQoS2Handshake(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)
	d := &fakeDeliverer{}
	s.Activate(d)

	s.Deliver("a/b", []byte("hi"), 2, false, nil)
	id := *d.published[0].PacketID

	pubrel := s.HandlePubRec(id)
	if pubrel == nil {
		t.Fatalf("HandlePubRec returned nil for a pending QoS 2 packet id")
	}
	if pubrel.PacketID != id {
		t.Errorf("pubrel.PacketID = %d, want %d", pubrel.PacketID, id)
	}

	s.HandlePubComp(id)
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() after HandlePubComp = %d, want 0", s.PendingCount())
	}
}

func TestHandleIncomingQoS2PublishDedups(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)

	fresh := s.HandleIncomingQoS2Publish(1, "a/b", []byte("hi"), false)
	if !fresh {
		t.Fatalf("first delivery of packet id 1 reported as not fresh")
	}

	fresh = s.HandleIncomingQoS2Publish(1, "a/b", []byte("hi"), false)
	if fresh {
		t.Fatalf("retransmitted packet id 1 reported as fresh")
	}

	s.HandlePubRel(1)
	fresh = s.HandleIncomingQoS2Publish(1, "a/b", []byte("hi"), false)
	if !fresh {
		t.Errorf("packet id 1 after PUBREL/release reported as not fresh")
	}
}

func TestDeliverNoopWhenNotConnected(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)
	d := &fakeDeliverer{}

	s.Deliver("a/b", []byte("hi"), 0, false, nil)
	if len(d.published) != 0 {
		t.Errorf("Deliver published while session was not connected")
	}
}

func TestDeliverQueuesOfflineAndFlushesOnActivate(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)

	s.Deliver("a/b", []byte("one"), 1, false, nil)
	s.Deliver("a/b", []byte("two"), 1, false, nil)
	if got := s.OfflineQueueLen(); got != 2 {
		t.Fatalf("OfflineQueueLen() = %d, want 2 while disconnected", got)
	}

	d := &fakeDeliverer{}
	s.Activate(d)

	if got := s.OfflineQueueLen(); got != 0 {
		t.Errorf("OfflineQueueLen() after Activate = %d, want 0", got)
	}
	if len(d.published) != 2 {
		t.Fatalf("published %d packets on flush, want 2", len(d.published))
	}
	if string(d.published[0].Payload) != "one" || string(d.published[1].Payload) != "two" {
		t.Errorf("offline queue flushed out of order: %q, %q", d.published[0].Payload, d.published[1].Payload)
	}
}

func TestDeliverQueuesAtReceiveMaximum(t *testing.T) {
	s := New("client-1", packet.MQTT5, nil)
	s.ReceiveMaximum = 1
	d := &fakeDeliverer{}
	s.Activate(d)

	s.Deliver("a/b", []byte("first"), 1, false, nil)
	if len(d.published) != 1 {
		t.Fatalf("published %d packets, want 1", len(d.published))
	}

	s.Deliver("a/b", []byte("second"), 1, false, nil)
	if len(d.published) != 1 {
		t.Fatalf("published %d packets while at receive-maximum, want 1", len(d.published))
	}
	if got := s.OfflineQueueLen(); got != 1 {
		t.Fatalf("OfflineQueueLen() = %d, want 1 while at receive-maximum", got)
	}

	id := *d.published[0].PacketID
	s.HandlePubAck(id)

	if len(d.published) != 2 {
		t.Fatalf("published %d packets after freeing a slot, want 2", len(d.published))
	}
	if got := s.OfflineQueueLen(); got != 0 {
		t.Errorf("OfflineQueueLen() after flush = %d, want 0", got)
	}
}

func TestQoS2RetryRespectsHandshakeStage(t *testing.T) {
	s := New("client-1", packet.MQTT311, nil)
	d := &fakeDeliverer{}
	s.Activate(d)

	s.Deliver("a/b", []byte("hi"), 2, false, nil)
	id := *d.published[0].PacketID

	s.mu.Lock()
	entry := s.outboundQoS2[id]
	s.mu.Unlock()
	if entry.Stage != WaitPubrec {
		t.Fatalf("Stage after Deliver = %v, want WaitPubrec", entry.Stage)
	}

	past := time.Now().Add(-2 * DefaultRetryDelay)
	s.mu.Lock()
	entry.Timestamp = past
	s.maybeRetryLocked(id, entry, time.Now())
	s.mu.Unlock()
	if len(d.published) != 2 {
		t.Fatalf("published %d packets, want 2 (original + WaitPubrec retry)", len(d.published))
	}
	if len(d.pubrels) != 0 {
		t.Fatalf("pubrels sent = %d, want 0 before PUBREC", len(d.pubrels))
	}

	if pubrel := s.HandlePubRec(id); pubrel == nil {
		t.Fatalf("HandlePubRec returned nil")
	}
	s.mu.Lock()
	entry = s.outboundQoS2[id]
	if entry.Stage != WaitPubcomp {
		s.mu.Unlock()
		t.Fatalf("Stage after HandlePubRec = %v, want WaitPubcomp", entry.Stage)
	}
	entry.Timestamp = past
	s.maybeRetryLocked(id, entry, time.Now())
	s.mu.Unlock()

	if len(d.published) != 2 {
		t.Errorf("published %d packets after WaitPubcomp retry, want still 2 (no duplicate PUBLISH)", len(d.published))
	}
	if len(d.pubrels) != 1 {
		t.Errorf("pubrels sent = %d, want 1 (resent PUBREL)", len(d.pubrels))
	}
}
