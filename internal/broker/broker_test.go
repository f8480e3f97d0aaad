package broker

import (
	"context"
	"testing"

	"github.com/pyr33x/goqtt/internal/auth"
	"github.com/pyr33x/goqtt/internal/packet"
	"github.com/pyr33x/goqtt/internal/session"
	"github.com/pyr33x/goqtt/internal/store"
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

func newTestSession(clientID string) (*session.Session, *fakeDeliverer) {
	s := session.New(clientID, packet.MQTT311, nil)
	d := &fakeDeliverer{}
	s.Activate(d)
	return s, d
}

func newTestBroker() *Broker {
	return New(auth.AllowAll{}, store.Memory{}, DefaultCapabilities(), nil)
}

func TestPublishRoutesToSubscriber(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	pub, pubD := newTestSession("publisher")
	sub, subD := newTestSession("subscriber")
	b.Register(pub)
	b.Register(sub)

	b.HandleSubscribe(ctx, sub, &packet.SubscribePacket{
		PacketID: 1,
		Filters:  []packet.SubscribeFilter{{Topic: "a/b", QoS: packet.QoSAtMostOnce}},
	})

	if err := b.HandlePublish(ctx, pub, &packet.PublishPacket{Topic: "a/b", Payload: []byte("hi")}); err != nil {
		t.Fatalf("HandlePublish() error = %v", err)
	}

	if len(subD.published) != 1 {
		t.Fatalf("subscriber received %d publishes, want 1", len(subD.published))
	}
	if string(subD.published[0].Payload) != "hi" {
		t.Errorf("payload = %q, want %q", subD.published[0].Payload, "hi")
	}
	if len(pubD.published) != 0 {
		t.Errorf("publisher received its own publish back")
	}
}

func TestRetainedMessageReplayedOnSubscribe(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	pub, _ := newTestSession("publisher")
	b.Register(pub)

	if err := b.HandlePublish(ctx, pub, &packet.PublishPacket{
		Topic: "status/online", Payload: []byte("1"), Retain: true,
	}); err != nil {
		t.Fatalf("HandlePublish() error = %v", err)
	}

	sub, subD := newTestSession("subscriber")
	b.Register(sub)
	b.HandleSubscribe(ctx, sub, &packet.SubscribePacket{
		PacketID: 2,
		Filters:  []packet.SubscribeFilter{{Topic: "status/online", QoS: packet.QoSAtMostOnce}},
	})

	if len(subD.published) != 1 {
		t.Fatalf("subscriber received %d retained replays, want 1", len(subD.published))
	}
	if !subD.published[0].Retain {
		t.Errorf("replayed publish Retain = false, want true")
	}
}

func TestEmptyRetainedPublishClears(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	pub, _ := newTestSession("publisher")
	b.Register(pub)

	b.HandlePublish(ctx, pub, &packet.PublishPacket{Topic: "a/b", Payload: []byte("x"), Retain: true})
	if b.RetainedCount() != 1 {
		t.Fatalf("RetainedCount() = %d, want 1", b.RetainedCount())
	}

	b.HandlePublish(ctx, pub, &packet.PublishPacket{Topic: "a/b", Payload: nil, Retain: true})
	if b.RetainedCount() != 0 {
		t.Errorf("RetainedCount() after empty-payload retain = %d, want 0", b.RetainedCount())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	pub, _ := newTestSession("publisher")
	sub, subD := newTestSession("subscriber")
	b.Register(pub)
	b.Register(sub)

	b.HandleSubscribe(ctx, sub, &packet.SubscribePacket{
		PacketID: 1,
		Filters:  []packet.SubscribeFilter{{Topic: "a/b", QoS: 0}},
	})
	b.HandleUnsubscribe(sub, []string{"a/b"})

	b.HandlePublish(ctx, pub, &packet.PublishPacket{Topic: "a/b", Payload: []byte("hi")})
	if len(subD.published) != 0 {
		t.Errorf("subscriber received a publish after unsubscribing")
	}
}

func TestCleanSessionDisconnectDropsSubscriptions(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	sub, _ := newTestSession("subscriber")
	sub.CleanSession = true
	b.Register(sub)
	b.HandleSubscribe(ctx, sub, &packet.SubscribePacket{
		PacketID: 1,
		Filters:  []packet.SubscribeFilter{{Topic: "a/b", QoS: 0}},
	})

	b.HandleDisconnect(sub)

	if _, ok := b.Session("subscriber"); ok {
		t.Errorf("clean session still registered after disconnect")
	}
	if b.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after clean disconnect, want 0", b.SubscriptionCount())
	}
}

func TestConnectResumesPersistentSessionByPointer(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	first, _ := b.Connect("client-1", packet.MQTT311, false, nil)
	first.CleanSession = false
	firstD := &fakeDeliverer{}
	first.Activate(firstD)

	b.HandleSubscribe(ctx, first, &packet.SubscribePacket{
		PacketID: 1,
		Filters:  []packet.SubscribeFilter{{Topic: "a/b", QoS: packet.QoSAtLeastOnce}},
	})
	first.MarkDisconnected()

	second, sessionPresent := b.Connect("client-1", packet.MQTT311, false, nil)
	if !sessionPresent {
		t.Fatalf("sessionPresent = false, want true for a resumed persistent session")
	}
	if second != first {
		t.Fatalf("Connect() returned a new *session.Session on resume, want the same pointer")
	}

	secondD := &fakeDeliverer{}
	second.Activate(secondD)
	if !firstD.closed {
		t.Errorf("prior connection's Deliverer was not closed on takeover")
	}

	if err := b.HandlePublish(ctx, second, &packet.PublishPacket{Topic: "a/b", Payload: []byte("hi")}); err != nil {
		t.Fatalf("HandlePublish() error = %v", err)
	}
	if len(secondD.published) != 1 {
		t.Fatalf("resumed session received %d publishes via its old subscription, want 1", len(secondD.published))
	}
}

func TestConnectCleanSessionDropsPriorSubscriptions(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	first, _ := b.Connect("client-1", packet.MQTT311, false, nil)
	first.CleanSession = false
	first.Activate(&fakeDeliverer{})
	b.HandleSubscribe(ctx, first, &packet.SubscribePacket{
		PacketID: 1,
		Filters:  []packet.SubscribeFilter{{Topic: "a/b", QoS: 0}},
	})
	first.MarkDisconnected()

	second, sessionPresent := b.Connect("client-1", packet.MQTT311, true, nil)
	if sessionPresent {
		t.Errorf("sessionPresent = true, want false for a clean-start reconnect")
	}
	if second == first {
		t.Errorf("Connect() reused the old *session.Session on a clean-start reconnect")
	}
	if b.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after clean-start reconnect, want 0", b.SubscriptionCount())
	}
}

func TestUngracefulCloseFiresWill(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	victim, _ := newTestSession("victim")
	victim.Will = &session.Will{Topic: "status/victim", Payload: []byte("offline"), QoS: packet.QoSAtMostOnce}
	b.Register(victim)

	sub, subD := newTestSession("watcher")
	b.Register(sub)
	b.HandleSubscribe(ctx, sub, &packet.SubscribePacket{
		PacketID: 1,
		Filters:  []packet.SubscribeFilter{{Topic: "status/victim", QoS: 0}},
	})

	b.HandleUngracefulClose(ctx, victim)

	if len(subD.published) != 1 {
		t.Fatalf("watcher received %d will deliveries, want 1", len(subD.published))
	}
	if string(subD.published[0].Payload) != "offline" {
		t.Errorf("will payload = %q, want %q", subD.published[0].Payload, "offline")
	}
}
