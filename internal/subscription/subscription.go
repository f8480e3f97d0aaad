// Package subscription implements the broker's subscription table: which
// sessions are listening on which topic filters, including MQTT-v5.0
// shared subscriptions ("$share/<group>/<filter>").
//
// Matching is a flat scan over registered filters rather than a trie:
// simpler to keep correct across plain, wildcard, and shared filters
// together, and cheap enough for the subscriber counts a single broker
// core handles.
package subscription

import (
	"sort"
	"sync"

	"github.com/pyr33x/goqtt/internal/topic"
)

// Subscriber is whatever owns a subscription; the broker supplies a
// concrete *session.Session here. Routing only needs an identity to
// dedupe against and a delivery sink.
type Subscriber interface {
	ID() string
	Deliver(topicName string, payload []byte, qos byte, retained bool, subscriptionIDs []int)
}

// Entry is one (subscriber, filter) registration.
type Entry struct {
	Filter            string
	Group             string // non-empty for a "$share/<group>/..." subscription
	QoS               byte
	NoLocal           bool
	RetainAsPublished bool
	SubscriptionID    int // 0 means none carried
	Subscriber        Subscriber
}

// Table holds every active subscription, grouped by filter string so
// that a publish only has to test each distinct filter once regardless
// of how many sessions subscribed to it.
type Table struct {
	mu      sync.RWMutex
	filters map[string][]*Entry // filter -> entries (including shared members)
	shareRR map[string]int      // "filter\x00group" -> round-robin cursor
}

func New() *Table {
	return &Table{
		filters: make(map[string][]*Entry),
		shareRR: make(map[string]int),
	}
}

// Subscribe registers or replaces a subscriber's entry for a filter. Per
// MQTT semantics, re-subscribing the same (subscriber, filter) pair
// updates the options in place rather than creating a duplicate.
func (t *Table) Subscribe(e *Entry) {
	group, effective, shared := topic.SplitShared(e.Filter)
	key := effective
	if shared {
		e.Group = group
		key = effective
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.filters[key]
	for i, existing := range entries {
		if existing.Subscriber.ID() == e.Subscriber.ID() && existing.Group == e.Group {
			entries[i] = e
			return
		}
	}
	t.filters[key] = append(entries, e)
}

// Unsubscribe removes a subscriber's entry for filter, reporting whether
// a subscription actually existed.
func (t *Table) Unsubscribe(subscriberID, filter string) bool {
	group, effective, _ := topic.SplitShared(filter)

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.filters[effective]
	for i, e := range entries {
		if e.Subscriber.ID() == subscriberID && e.Group == group {
			t.filters[effective] = append(entries[:i], entries[i+1:]...)
			if len(t.filters[effective]) == 0 {
				delete(t.filters, effective)
			}
			return true
		}
	}
	return false
}

// RemoveSubscriber drops every subscription a subscriber owns, e.g. on
// session destruction.
func (t *Table) RemoveSubscriber(subscriberID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for filter, entries := range t.filters {
		kept := entries[:0]
		for _, e := range entries {
			if e.Subscriber.ID() != subscriberID {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(t.filters, filter)
		} else {
			t.filters[filter] = kept
		}
	}
}

// Route delivers a publish to every matching subscriber: once to each
// non-shared subscriber whose filter matches, and once to a single
// round-robin-selected member of each matching shared group.
func (t *Table) Route(topicName string, payload []byte, qos byte, retained bool, publisherID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	type delivery struct {
		entry  *Entry
		subIDs []int
	}
	perSubscriber := make(map[string]*delivery)
	sharedGroups := make(map[string][]*Entry)

	for filter, entries := range t.filters {
		if !topic.Match(filter, topicName) {
			continue
		}
		for _, e := range entries {
			if e.NoLocal && e.Subscriber.ID() == publisherID {
				continue
			}
			if e.Group != "" {
				key := filter + "\x00" + e.Group
				sharedGroups[key] = append(sharedGroups[key], e)
				continue
			}
			d, ok := perSubscriber[e.Subscriber.ID()]
			if !ok {
				d = &delivery{entry: e}
				perSubscriber[e.Subscriber.ID()] = d
			} else if e.QoS > d.entry.QoS {
				d.entry = e
			}
			if e.SubscriptionID != 0 {
				d.subIDs = append(d.subIDs, e.SubscriptionID)
			}
		}
	}

	for key, members := range sharedGroups {
		sort.Slice(members, func(i, j int) bool {
			return members[i].Subscriber.ID() < members[j].Subscriber.ID()
		})
		idx := t.shareRR[key] % len(members)
		t.shareRR[key] = idx + 1
		chosen := members[idx]
		if _, ok := perSubscriber[chosen.Subscriber.ID()]; !ok {
			d := &delivery{entry: chosen}
			if chosen.SubscriptionID != 0 {
				d.subIDs = []int{chosen.SubscriptionID}
			}
			perSubscriber[chosen.Subscriber.ID()] = d
		}
	}

	for _, d := range perSubscriber {
		effectiveQoS := qos
		if d.entry.QoS < effectiveQoS {
			effectiveQoS = d.entry.QoS
		}
		r := retained && d.entry.RetainAsPublished
		d.entry.Subscriber.Deliver(topicName, payload, effectiveQoS, r, d.subIDs)
	}
}

// Filters returns every distinct filter a subscriber is registered
// under, used to answer session-introspection queries.
func (t *Table) Filters(subscriberID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for filter, entries := range t.filters {
		for _, e := range entries {
			if e.Subscriber.ID() == subscriberID {
				f := filter
				if e.Group != "" {
					f = "$share/" + e.Group + "/" + filter
				}
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Count returns the total number of (subscriber, filter) registrations.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, entries := range t.filters {
		n += len(entries)
	}
	return n
}
