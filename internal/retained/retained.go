// Package retained implements the broker's retained-message store: the
// last message published to each topic with the retain flag set, kept
// around to be replayed to new subscribers.
package retained

import (
	"sync"

	"github.com/pyr33x/goqtt/internal/packet"
)

// Message is a single retained publish, keyed by its exact topic name.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        packet.QoSLevel
	Properties *packet.Properties
}

// Store holds one retained message per topic in a map guarded by a
// RWMutex, the way the teacher's broker guards its session map; the map
// is updated in place and Snapshot copies its entries out.
type Store struct {
	mu   sync.RWMutex
	msgs map[string]*Message
}

func New() *Store {
	return &Store{msgs: make(map[string]*Message)}
}

// Set stores msg as the topic's retained message. A zero-length payload
// deletes any existing retained message for the topic instead, per
// MQTT-v3.1.1 §3.3.1.3 / MQTT-v5.0 §3.3.1.3.
func (s *Store) Set(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msg.Payload) == 0 {
		delete(s.msgs, msg.Topic)
		return
	}
	s.msgs[msg.Topic] = msg
}

// Get returns the retained message for an exact topic, if any.
func (s *Store) Get(topic string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[topic]
	return m, ok
}

// Snapshot returns a stable copy of every retained message, for a
// matcher to filter against a newly-accepted subscription filter without
// holding the store's lock for the duration of the match.
func (s *Store) Snapshot() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m)
	}
	return out
}

// Count reports how many topics currently hold a retained message.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
