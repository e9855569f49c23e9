package mqtt

import "testing"

func TestDispatcherRoutesToMatchingHandler(t *testing.T) {
	d := newDispatcher()
	received := make(chan string, 1)
	d.subscribeOptimistic("device/+/status", 1, func(topicName string, payload []byte) {
		received <- topicName + ":" + string(payload)
	})

	d.dispatch(&Message{Topic: "device/42/status", Payload: []byte("up")})

	select {
	case got := <-received:
		if got != "device/42/status:up" {
			t.Errorf("handler received %q, want \"device/42/status:up\"", got)
		}
	default:
		t.Fatal("handler was not invoked for a matching topic")
	}
}

func TestDispatcherFallsBackToDefaultHandler(t *testing.T) {
	d := newDispatcher()
	called := false
	d.setDefaultHandler(func(msg *Message) { called = true })

	d.dispatch(&Message{Topic: "unmatched/topic", Payload: []byte("x")})
	if !called {
		t.Error("default handler should run when no filter matches")
	}
}

func TestDispatcherUnsubscribeRemovesHandler(t *testing.T) {
	d := newDispatcher()
	calls := 0
	d.subscribeOptimistic("a/b", 0, func(string, []byte) { calls++ })
	d.unsubscribe("a/b")

	d.dispatch(&Message{Topic: "a/b", Payload: nil})
	if calls != 0 {
		t.Errorf("handler was called %d times after unsubscribe, want 0", calls)
	}
}

func TestDispatcherRollbackRemovesOnlyThatFilter(t *testing.T) {
	d := newDispatcher()
	keptCalls, rolledBackCalls := 0, 0
	d.subscribeOptimistic("kept/+", 0, func(string, []byte) { keptCalls++ })
	d.subscribeOptimistic("bad/+", 0, func(string, []byte) { rolledBackCalls++ })

	d.rollback("bad/+")

	d.dispatch(&Message{Topic: "kept/1"})
	d.dispatch(&Message{Topic: "bad/1"})

	if keptCalls != 1 {
		t.Errorf("kept filter should still dispatch, got %d calls", keptCalls)
	}
	if rolledBackCalls != 0 {
		t.Errorf("rolled-back filter should not dispatch, got %d calls", rolledBackCalls)
	}
}

func TestDispatcherMultipleMatchesAllFire(t *testing.T) {
	d := newDispatcher()
	var order []string
	d.subscribeOptimistic("a/b/c", 0, func(string, []byte) { order = append(order, "exact") })
	d.subscribeOptimistic("a/+/c", 0, func(string, []byte) { order = append(order, "plus") })
	d.subscribeOptimistic("a/#", 0, func(string, []byte) { order = append(order, "hash") })

	d.dispatch(&Message{Topic: "a/b/c"})
	if len(order) != 3 {
		t.Errorf("expected all three overlapping filters to fire, got %v", order)
	}
}
