// Package session implements per-client broker state: the connect/
// disconnect/expire lifecycle, in-flight QoS 1/2 tracking with retry,
// packet identifier allocation, and v5 topic alias tables.
package session

import (
	"sync"
	"time"

	"github.com/pyr33x/goqtt/internal/logger"
	"github.com/pyr33x/goqtt/internal/packet"
)

// State is the session's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected // clean-start false; awaiting either resume or expiry
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 30 * time.Second
	QoS2Timeout        = 5 * time.Minute
	retryCheckInterval = 10 * time.Second
)

// Will carries a session's last-will publish, armed at CONNECT and fired
// on ungraceful disconnect (or after WillDelayInterval under v5).
type Will struct {
	Topic      string
	Payload    []byte
	QoS        packet.QoSLevel
	Retain     bool
	Delay      time.Duration
	Properties *packet.Properties
}

// qos2Stage is where an outbound QoS 2 exchange stands: waiting on PUBREC
// for the original PUBLISH, or waiting on PUBCOMP after PUBREL was sent.
type qos2Stage int

const (
	WaitPubrec qos2Stage = iota
	WaitPubcomp
)

// PendingOutbound is a QoS 1/2 publish awaiting acknowledgment from this
// session's peer. Stage is only meaningful for QoS 2 entries.
type PendingOutbound struct {
	PacketID   uint16
	Topic      string
	Payload    []byte
	QoS        packet.QoSLevel
	Retain     bool
	Timestamp  time.Time
	RetryCount int
	Stage      qos2Stage
}

// offlineMessage is a publish queued for a session with no live connection,
// or one that is connected but has hit its receive-maximum. Flushed in
// order by flushOfflineLocked.
type offlineMessage struct {
	Topic           string
	Payload         []byte
	QoS             byte
	Retained        bool
	SubscriptionIDs []int
}

// pendingInboundQoS2 tracks a QoS 2 publish received from this session's
// peer, between PUBREC and PUBCOMP.
type pendingInboundQoS2 struct {
	Topic     string
	Payload   []byte
	Retain    bool
	Timestamp time.Time
}

// Deliverer is whatever can push a framed packet out over this session's
// transport; satisfied by the transport adapter's connection wrapper. It
// takes *packet.PublishPacket specifically (rather than the bare Packet
// interface) because publish delivery must be re-encoded per the
// session's negotiated protocol version on every retry.
type Deliverer interface {
	WritePublish(pub *packet.PublishPacket) error
	WritePubrel(pubrel *packet.PubrelPacket) error
	Close() error
}

// Session is one client's full broker-side state: identity, connection,
// subscriptions metadata, will, and in-flight QoS bookkeeping.
type Session struct {
	ClientID        string
	ProtocolVersion packet.ProtocolVersion
	CleanSession    bool
	KeepAlive       uint16
	ConnectedAt     time.Time
	Will            *Will

	ReceiveMaximum    uint16
	TopicAliasMax     uint16
	SessionExpiry     time.Duration
	TopicAliasInbound map[uint16]string

	mu      sync.Mutex
	state   State
	deliver Deliverer
	log     *logger.Logger

	nextPacketID uint32
	inUseIDs     map[uint16]bool

	outboundQoS1 map[uint16]*PendingOutbound
	outboundQoS2 map[uint16]*PendingOutbound
	inboundQoS2  map[uint16]*pendingInboundQoS2

	offlineQueue []offlineMessage

	retryTicker *time.Ticker
	stopRetry   chan struct{}
	retryOnce   sync.Once
}

// New creates a session in StateConnecting; call Activate once the
// CONNECT handshake finishes and the transport connection is attached.
func New(clientID string, version packet.ProtocolVersion, log *logger.Logger) *Session {
	return &Session{
		ClientID:          clientID,
		ProtocolVersion:   version,
		state:             StateConnecting,
		log:               log,
		inUseIDs:          make(map[uint16]bool),
		outboundQoS1:      make(map[uint16]*PendingOutbound),
		outboundQoS2:      make(map[uint16]*PendingOutbound),
		inboundQoS2:       make(map[uint16]*pendingInboundQoS2),
		TopicAliasInbound: make(map[uint16]string),
		ReceiveMaximum:    65535,
	}
}

// Activate transitions the session to StateConnected, attaches its
// transport, and starts the retry loop governing QoS redelivery. If a
// different Deliverer was already attached — a prior connection for the
// same client-id that a new CONNECT is taking over — that connection is
// closed, per the single-owner-connection rule.
func (s *Session) Activate(deliver Deliverer) {
	s.mu.Lock()
	prev := s.deliver
	s.deliver = deliver
	s.state = StateConnected
	s.ConnectedAt = time.Now()
	s.mu.Unlock()

	if prev != nil && prev != deliver {
		prev.Close()
	}

	s.retryOnce.Do(func() {
		s.retryTicker = time.NewTicker(retryCheckInterval)
		s.stopRetry = make(chan struct{})
		go s.retryLoop()
	})

	s.flushOffline()
}

// flushOffline delivers everything queued while the session was offline
// (or throttled at its receive-maximum), in order, stopping early if
// outbound flow control fills back up.
func (s *Session) flushOffline() {
	for {
		s.mu.Lock()
		if len(s.offlineQueue) == 0 || s.state != StateConnected || s.atReceiveMaximumLocked() {
			s.mu.Unlock()
			return
		}
		m := s.offlineQueue[0]
		s.offlineQueue = s.offlineQueue[1:]
		s.mu.Unlock()

		s.Deliver(m.Topic, m.Payload, m.QoS, m.Retained, m.SubscriptionIDs)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkDisconnected transitions a persistent session to StateDisconnected
// so it can be resumed later; a clean session instead moves straight to
// StateDestroyed, since there is nothing to resume.
func (s *Session) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CleanSession {
		s.state = StateDestroyed
		return
	}
	s.state = StateDisconnected
	s.deliver = nil
}

// Destroy stops the retry loop and marks the session permanently gone.
func (s *Session) Destroy() {
	s.mu.Lock()
	s.state = StateDestroyed
	s.mu.Unlock()

	if s.stopRetry != nil {
		close(s.stopRetry)
	}
	if s.retryTicker != nil {
		s.retryTicker.Stop()
	}
}

// ID satisfies subscription.Subscriber.
func (s *Session) ID() string { return s.ClientID }

// Deliver satisfies subscription.Subscriber: it builds the appropriate
// PUBLISH packet for this session's negotiated protocol version and
// either writes it immediately (QoS 0) or registers it for QoS 1/2
// redelivery.
func (s *Session) Deliver(topicName string, payload []byte, qos byte, retained bool, subscriptionIDs []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected || s.deliver == nil {
		if qos > 0 {
			s.offlineQueue = append(s.offlineQueue, offlineMessage{
				Topic: topicName, Payload: payload, QoS: qos, Retained: retained, SubscriptionIDs: subscriptionIDs,
			})
		}
		return
	}

	if qos > 0 && s.atReceiveMaximumLocked() {
		s.offlineQueue = append(s.offlineQueue, offlineMessage{
			Topic: topicName, Payload: payload, QoS: qos, Retained: retained, SubscriptionIDs: subscriptionIDs,
		})
		return
	}

	pub := &packet.PublishPacket{
		Topic:   topicName,
		Payload: payload,
		QoS:     packet.QoSLevel(qos),
		Retain:  retained,
	}
	if len(subscriptionIDs) > 0 {
		pub.Properties = &packet.Properties{SubscriptionIdentifiers: subscriptionIDs}
	}

	if qos > 0 {
		id := s.allocatePacketIDLocked()
		pub.PacketID = &id
		entry := &PendingOutbound{
			PacketID:  id,
			Topic:     topicName,
			Payload:   payload,
			QoS:       packet.QoSLevel(qos),
			Retain:    retained,
			Timestamp: time.Now(),
			Stage:     WaitPubrec,
		}
		if qos == 1 {
			s.outboundQoS1[id] = entry
		} else {
			s.outboundQoS2[id] = entry
		}
	}

	if err := s.deliver.WritePublish(pub); err != nil && s.log != nil {
		s.log.Error("publish delivery failed", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
	}
}

// allocatePacketIDLocked returns the next free packet identifier,
// skipping 0 and any identifier still awaiting acknowledgment.
func (s *Session) allocatePacketIDLocked() uint16 {
	for i := 0; i < 65535; i++ {
		s.nextPacketID++
		id := uint16(s.nextPacketID)
		if id == 0 {
			continue
		}
		if !s.inUseIDs[id] {
			s.inUseIDs[id] = true
			return id
		}
	}
	return 0
}

// HandlePubAck releases an outbound QoS 1 message on acknowledgment and
// flushes anything that was queued waiting for the slot it held.
func (s *Session) HandlePubAck(packetID uint16) {
	s.mu.Lock()
	delete(s.outboundQoS1, packetID)
	delete(s.inUseIDs, packetID)
	s.mu.Unlock()
	s.flushOffline()
}

// HandlePubRec advances an outbound QoS 2 message from WaitPubrec to
// WaitPubcomp and resets its retry clock, so the retry loop resends a
// PUBREL rather than a duplicate PUBLISH for this packet id.
func (s *Session) HandlePubRec(packetID uint16) *packet.PubrelPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.outboundQoS2[packetID]
	if !ok {
		return nil
	}
	pm.Stage = WaitPubcomp
	pm.RetryCount = 0
	pm.Timestamp = time.Now()
	return packet.NewPubrelPacket(packetID)
}

// HandlePubComp completes an outbound QoS 2 exchange and flushes anything
// that was queued waiting for the slot it held.
func (s *Session) HandlePubComp(packetID uint16) {
	s.mu.Lock()
	delete(s.outboundQoS2, packetID)
	delete(s.inUseIDs, packetID)
	s.mu.Unlock()
	s.flushOffline()
}

// HandleIncomingQoS2Publish records an inbound QoS 2 publish and reports
// whether it is a fresh delivery (false means this packet ID is a
// retransmission already recorded, and must not be routed twice).
func (s *Session) HandleIncomingQoS2Publish(packetID uint16, topicName string, payload []byte, retain bool) (fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inboundQoS2[packetID]; ok {
		return false
	}
	s.inboundQoS2[packetID] = &pendingInboundQoS2{Topic: topicName, Payload: payload, Retain: retain, Timestamp: time.Now()}
	return true
}

// HandlePubRel releases an inbound QoS 2 publish after the handshake
// completes.
func (s *Session) HandlePubRel(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inboundQoS2, packetID)
}

// PendingCount reports the number of in-flight outbound messages, for
// diagnostics and receive-maximum enforcement.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outboundQoS1) + len(s.outboundQoS2)
}

// atReceiveMaximumLocked reports whether the client's advertised
// receive-maximum has been reached, meaning further QoS 1/2 deliveries
// must queue rather than send until an ack frees a slot.
func (s *Session) atReceiveMaximumLocked() bool {
	if s.ReceiveMaximum == 0 {
		return false
	}
	return uint16(len(s.outboundQoS1)+len(s.outboundQoS2)) >= s.ReceiveMaximum
}

// OfflineQueueLen reports how many messages are queued pending delivery,
// for diagnostics.
func (s *Session) OfflineQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offlineQueue)
}

func (s *Session) retryLoop() {
	for {
		select {
		case <-s.stopRetry:
			return
		case <-s.retryTicker.C:
			s.processRetries()
		}
	}
}

func (s *Session) processRetries() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected || s.deliver == nil {
		return
	}

	now := time.Now()
	for id, pm := range s.outboundQoS1 {
		s.maybeRetryLocked(id, pm, now)
	}
	for id, pm := range s.outboundQoS2 {
		s.maybeRetryLocked(id, pm, now)
	}
}

// maybeRetryLocked resends an overdue in-flight entry: a QoS 1 message or
// a QoS 2 message still in WaitPubrec gets its PUBLISH resent with dup=1;
// a QoS 2 message already in WaitPubcomp gets its PUBREL resent instead,
// since the original PUBLISH has already been acknowledged once and must
// not be delivered twice.
func (s *Session) maybeRetryLocked(id uint16, pm *PendingOutbound, now time.Time) {
	if now.Sub(pm.Timestamp) < DefaultRetryDelay {
		return
	}
	if pm.RetryCount >= DefaultMaxRetries {
		return
	}
	pm.RetryCount++
	pm.Timestamp = now

	if pm.QoS == packet.QoSExactlyOnce && pm.Stage == WaitPubcomp {
		if err := s.deliver.WritePubrel(packet.NewPubrelPacket(id)); err != nil && s.log != nil {
			s.log.Error("retry pubrel failed", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
		}
		return
	}

	packetID := id
	pub := &packet.PublishPacket{
		Topic:    pm.Topic,
		Payload:  pm.Payload,
		QoS:      pm.QoS,
		Retain:   pm.Retain,
		DUP:      true,
		PacketID: &packetID,
	}
	if err := s.deliver.WritePublish(pub); err != nil && s.log != nil {
		s.log.Error("retry delivery failed", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
	}
}
