// Package broker wires the topic matcher, subscription table, retained
// store, and session registry together into the broker core: the
// transport-independent logic that turns a decoded packet from one
// client into state changes and outbound packets for others.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/pyr33x/goqtt/internal/auth"
	"github.com/pyr33x/goqtt/internal/logger"
	"github.com/pyr33x/goqtt/internal/packet"
	"github.com/pyr33x/goqtt/internal/retained"
	"github.com/pyr33x/goqtt/internal/session"
	"github.com/pyr33x/goqtt/internal/store"
	"github.com/pyr33x/goqtt/internal/subscription"
	"github.com/pyr33x/goqtt/internal/topic"
	"github.com/pyr33x/goqtt/pkg/er"
)

// Capabilities advertises the server-side limits and optional features
// the broker was configured with, echoed to v5 clients via CONNACK
// properties.
type Capabilities struct {
	MaxQoS               packet.QoSLevel
	RetainAvailable      bool
	WildcardSubAvailable bool
	SubIDsAvailable      bool
	SharedSubAvailable   bool
	ReceiveMaximum       uint16
	TopicAliasMaximum    uint16
	MaxPacketSize        uint32
	ServerKeepAlive      uint16
	SessionExpiryMax     time.Duration
}

// DefaultCapabilities matches what a feature-complete broker supports.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		MaxQoS:               packet.QoSExactlyOnce,
		RetainAvailable:      true,
		WildcardSubAvailable: true,
		SubIDsAvailable:      true,
		SharedSubAvailable:   true,
		ReceiveMaximum:       65535,
		TopicAliasMaximum:    16,
		MaxPacketSize:        uint32(packet.MaxPayloadSize),
		SessionExpiryMax:     24 * time.Hour,
	}
}

// Broker owns every piece of cross-client state: active sessions, the
// subscription table, and the retained-message store.
type Broker struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	subs     *subscription.Table
	retained *retained.Store
	persist  store.Hook

	auth auth.Hook
	caps Capabilities
	log  *logger.Logger
}

// New builds a broker. persist may be nil, in which case retained
// messages do not survive a restart.
func New(authHook auth.Hook, persist store.Hook, caps Capabilities, log *logger.Logger) *Broker {
	if authHook == nil {
		authHook = auth.AllowAll{}
	}
	if persist == nil {
		persist = store.Memory{}
	}

	rs := retained.New()
	if saved, err := persist.LoadRetained(); err == nil {
		for _, m := range saved {
			rs.Set(m)
		}
	} else if log != nil {
		log.LogError(err, "failed to load retained messages from store")
	}

	return &Broker{
		sessions: make(map[string]*session.Session),
		subs:     subscription.New(),
		retained: rs,
		persist:  persist,
		auth:     authHook,
		caps:     caps,
		log:      log,
	}
}

func (b *Broker) Capabilities() Capabilities { return b.caps }

// Authenticate delegates to the configured auth hook.
func (b *Broker) Authenticate(ctx context.Context, clientID, username, password string) error {
	return b.auth.Authenticate(ctx, clientID, username, password)
}

// Session returns the currently registered session for a client ID, if
// any — regardless of whether it is connected or merely pending expiry.
func (b *Broker) Session(clientID string) (*session.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[clientID]
	return s, ok
}

// Register installs a session under its client ID unconditionally,
// replacing any session that previously occupied that ID with no
// attempt at takeover. It reports whether a prior session existed.
// Connect is the takeover-aware entry point CONNECT handling should use;
// Register remains for callers that already hold the session they want
// installed verbatim.
func (b *Broker) Register(s *session.Session) (existed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, existed = b.sessions[s.ClientID]
	b.sessions[s.ClientID] = s
	return existed
}

// Connect resolves the session a new CONNECT should attach to. With
// clean-start set, any session previously registered for clientID is
// torn down (subscriptions dropped, in-flight state discarded) and a
// fresh one takes its place. With clean-start clear, a session already
// registered for clientID is reused as-is — same pointer, so its
// in-flight QoS maps, offline queue, and subscription.Table entries
// (which reference it by pointer) all carry over untouched — and the
// caller is expected to call Activate on it, which closes out the prior
// connection's Deliverer per the single-owner-connection rule. It reports
// whether a prior session was resumed, for CONNACK's Session Present flag.
func (b *Broker) Connect(clientID string, version packet.ProtocolVersion, cleanSession bool, log *logger.Logger) (s *session.Session, sessionPresent bool) {
	b.mu.Lock()
	existing, found := b.sessions[clientID]
	if found && !cleanSession {
		existing.ProtocolVersion = version
		b.mu.Unlock()
		return existing, true
	}
	b.mu.Unlock()

	if found {
		b.subs.RemoveSubscriber(clientID)
		existing.Destroy()
	}

	s = session.New(clientID, version, log)
	b.mu.Lock()
	b.sessions[clientID] = s
	b.mu.Unlock()
	return s, false
}

// Forget removes a session entirely, e.g. once its session-expiry timer
// fires, and drops every subscription it owned.
func (b *Broker) Forget(clientID string) {
	b.mu.Lock()
	s, ok := b.sessions[clientID]
	delete(b.sessions, clientID)
	b.mu.Unlock()

	if ok {
		s.Destroy()
	}
	b.subs.RemoveSubscriber(clientID)
}

// HandleSubscribe registers filters for a session and returns the
// granted QoS (or failure reason code) for each, in request order.
// Retained messages matching each registered filter are replayed to the
// session unless that filter's retain handling is RetainDoNotSend.
func (b *Broker) HandleSubscribe(ctx context.Context, s *session.Session, sp *packet.SubscribePacket) []byte {
	filters := sp.Filters
	subID := 0
	if sp.Properties != nil && len(sp.Properties.SubscriptionIdentifiers) > 0 {
		subID = sp.Properties.SubscriptionIdentifiers[0]
	}
	codes := make([]byte, len(filters))

	for i, f := range filters {
		if err := b.auth.AuthorizeSubscribe(ctx, s.ClientID, f.Topic); err != nil {
			codes[i] = packet.ReasonNotAuthorizedV5
			continue
		}

		granted := f.QoS
		if granted > b.caps.MaxQoS {
			granted = b.caps.MaxQoS
		}

		if _, _, shared := topic.SplitShared(f.Topic); shared && !b.caps.SharedSubAvailable {
			codes[i] = packet.ReasonSharedSubsNotSupported
			continue
		}

		b.subs.Subscribe(&subscription.Entry{
			Filter:            f.Topic,
			QoS:               byte(granted),
			NoLocal:           f.NoLocal,
			RetainAsPublished: f.RetainAsPublished,
			SubscriptionID:    subID,
			Subscriber:        s,
		})
		codes[i] = byte(granted)

		if f.RetainHandling != packet.RetainDoNotSend {
			b.sendRetainedMatches(s, f.Topic)
		}

		if b.log != nil {
			b.log.LogSubscription(s.ClientID, f.Topic, int(granted), "subscribe")
		}
	}

	return codes
}

func (b *Broker) HandleUnsubscribe(s *session.Session, filters []string) []byte {
	codes := make([]byte, len(filters))
	for i, f := range filters {
		if b.subs.Unsubscribe(s.ClientID, f) {
			codes[i] = packet.ReasonSuccess
		} else {
			codes[i] = packet.ReasonNoSubscriptionExisted
		}
	}
	return codes
}

// HandlePublish validates and routes an incoming PUBLISH: storing/
// clearing a retained copy, then fanning it out to every matching
// subscriber.
func (b *Broker) HandlePublish(ctx context.Context, s *session.Session, p *packet.PublishPacket) error {
	if p.Properties != nil && p.Properties.TopicAlias != 0 {
		if p.Topic == "" {
			t, ok := s.TopicAliasInbound[p.Properties.TopicAlias]
			if !ok {
				return &er.Err{Context: "Publish, TopicAlias", Message: er.ErrTopicAliasUnknown}
			}
			p.Topic = t
		} else {
			s.TopicAliasInbound[p.Properties.TopicAlias] = p.Topic
		}
	}

	if err := b.auth.AuthorizePublish(ctx, s.ClientID, p.Topic); err != nil {
		return err
	}

	if p.Retain {
		m := &retained.Message{
			Topic:      p.Topic,
			Payload:    p.Payload,
			QoS:        p.QoS,
			Properties: p.Properties,
		}
		b.retained.Set(m)
		if len(p.Payload) == 0 {
			b.persist.DeleteRetained(p.Topic)
		} else {
			b.persist.SaveRetained(m)
		}
	}

	if b.log != nil {
		b.log.LogPublish(s.ClientID, p.Topic, int(p.QoS), p.Retain, len(p.Payload))
	}

	b.subs.Route(p.Topic, p.Payload, byte(p.QoS), p.Retain, s.ClientID)
	return nil
}

// sendRetainedMatches replays every retained message matching filter to
// a single newly-subscribed session.
func (b *Broker) sendRetainedMatches(s *session.Session, filter string) {
	_, effective, shared := topic.SplitShared(filter)
	if shared {
		return // shared subscriptions do not receive a retained replay on subscribe
	}
	for _, m := range b.retained.Snapshot() {
		if topic.Match(effective, m.Topic) {
			s.Deliver(m.Topic, m.Payload, byte(m.QoS), true, nil)
		}
	}
}

// HandleDisconnect marks a session as cleanly disconnected: no will is
// fired, and persistent sessions remain resumable until expiry.
func (b *Broker) HandleDisconnect(s *session.Session) {
	s.MarkDisconnected()
	if s.CleanSession {
		b.subs.RemoveSubscriber(s.ClientID)
		b.mu.Lock()
		delete(b.sessions, s.ClientID)
		b.mu.Unlock()
	}
}

// HandleUngracefulClose marks a session disconnected and fires its will,
// if armed, honoring the v5 will-delay interval.
func (b *Broker) HandleUngracefulClose(ctx context.Context, s *session.Session) {
	s.MarkDisconnected()
	if s.CleanSession {
		b.subs.RemoveSubscriber(s.ClientID)
		b.mu.Lock()
		delete(b.sessions, s.ClientID)
		b.mu.Unlock()
	}

	will := s.Will
	if will == nil {
		return
	}

	fire := func() {
		if will.Retain {
			m := &retained.Message{Topic: will.Topic, Payload: will.Payload, QoS: will.QoS, Properties: will.Properties}
			b.retained.Set(m)
			if len(will.Payload) == 0 {
				b.persist.DeleteRetained(will.Topic)
			} else {
				b.persist.SaveRetained(m)
			}
		}
		b.subs.Route(will.Topic, will.Payload, byte(will.QoS), will.Retain, s.ClientID)
	}

	if will.Delay <= 0 {
		fire()
		return
	}
	go func() {
		timer := time.NewTimer(will.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			fire()
		case <-ctx.Done():
		}
	}()
}

func (b *Broker) GetClientSubscriptions(clientID string) []string {
	return b.subs.Filters(clientID)
}

func (b *Broker) SubscriptionCount() int { return b.subs.Count() }

func (b *Broker) RetainedCount() int { return b.retained.Count() }
