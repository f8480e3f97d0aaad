package subscription

import (
	"sort"
	"testing"
)

type fakeSubscriber struct {
	id    string
	calls []string
}

func (f *fakeSubscriber) ID() string { return f.id }
func (f *fakeSubscriber) Deliver(topicName string, payload []byte, qos byte, retained bool, subscriptionIDs []int) {
	f.calls = append(f.calls, topicName)
}

func TestSubscribeAndRoute(t *testing.T) {
	table := New()
	sub := &fakeSubscriber{id: "client-1"}

	table.Subscribe(&Entry{Filter: "a/b", QoS: 1, Subscriber: sub})
	table.Route("a/b", []byte("hi"), 1, false, "publisher")

	if len(sub.calls) != 1 {
		t.Fatalf("Deliver called %d times, want 1", len(sub.calls))
	}
}

func TestRouteSkipsNonMatchingFilter(t *testing.T) {
	table := New()
	sub := &fakeSubscriber{id: "client-1"}
	table.Subscribe(&Entry{Filter: "a/b", Subscriber: sub})

	table.Route("x/y", nil, 0, false, "publisher")

	if len(sub.calls) != 0 {
		t.Errorf("Deliver called for non-matching topic, calls = %v", sub.calls)
	}
}

func TestRouteDedupsOverlappingFilters(t *testing.T) {
	table := New()
	sub := &fakeSubscriber{id: "client-1"}
	table.Subscribe(&Entry{Filter: "a/+", QoS: 0, Subscriber: sub})
	table.Subscribe(&Entry{Filter: "a/#", QoS: 2, Subscriber: sub})

	table.Route("a/b", nil, 2, false, "publisher")

	if len(sub.calls) != 1 {
		t.Fatalf("Deliver called %d times, want 1 (deduped across overlapping filters)", len(sub.calls))
	}
}

func TestRouteHonorsNoLocal(t *testing.T) {
	table := New()
	sub := &fakeSubscriber{id: "client-1"}
	table.Subscribe(&Entry{Filter: "a/b", NoLocal: true, Subscriber: sub})

	table.Route("a/b", nil, 0, false, "client-1")
	if len(sub.calls) != 0 {
		t.Errorf("NoLocal subscriber received its own publish")
	}

	table.Route("a/b", nil, 0, false, "someone-else")
	if len(sub.calls) != 1 {
		t.Errorf("NoLocal subscriber did not receive another client's publish")
	}
}

func TestRouteSharedGroupRoundRobins(t *testing.T) {
	table := New()
	subA := &fakeSubscriber{id: "a"}
	subB := &fakeSubscriber{id: "b"}

	table.Subscribe(&Entry{Filter: "$share/g/topic", Subscriber: subA})
	table.Subscribe(&Entry{Filter: "$share/g/topic", Subscriber: subB})

	for i := 0; i < 4; i++ {
		table.Route("topic", nil, 0, false, "publisher")
	}

	total := len(subA.calls) + len(subB.calls)
	if total != 4 {
		t.Fatalf("total deliveries = %d, want 4", total)
	}
	if len(subA.calls) == 0 || len(subB.calls) == 0 {
		t.Errorf("shared group delivery was not distributed: a=%d b=%d", len(subA.calls), len(subB.calls))
	}
}

func TestUnsubscribe(t *testing.T) {
	table := New()
	sub := &fakeSubscriber{id: "client-1"}
	table.Subscribe(&Entry{Filter: "a/b", Subscriber: sub})

	if !table.Unsubscribe("client-1", "a/b") {
		t.Fatalf("Unsubscribe returned false, want true")
	}
	if table.Unsubscribe("client-1", "a/b") {
		t.Errorf("second Unsubscribe returned true, want false (already removed)")
	}

	table.Route("a/b", nil, 0, false, "publisher")
	if len(sub.calls) != 0 {
		t.Errorf("unsubscribed client still received a delivery")
	}
}

func TestRemoveSubscriber(t *testing.T) {
	table := New()
	sub := &fakeSubscriber{id: "client-1"}
	table.Subscribe(&Entry{Filter: "a/b", Subscriber: sub})
	table.Subscribe(&Entry{Filter: "c/d", Subscriber: sub})

	table.RemoveSubscriber("client-1")

	if table.Count() != 0 {
		t.Errorf("Count() = %d after RemoveSubscriber, want 0", table.Count())
	}
}

func TestFilters(t *testing.T) {
	table := New()
	sub := &fakeSubscriber{id: "client-1"}
	table.Subscribe(&Entry{Filter: "a/b", Subscriber: sub})
	table.Subscribe(&Entry{Filter: "topic", Group: "", Subscriber: sub})

	got := table.Filters("client-1")
	sort.Strings(got)
	want := []string{"a/b", "topic"}
	if len(got) != len(want) {
		t.Fatalf("Filters() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Filters()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
