package mqtt

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeReconnectHandle struct {
	automatic bool
	maxDelay  time.Duration

	mu       sync.Mutex
	attempts int
	failN    int // number of attempts that should fail before succeeding
}

func (f *fakeReconnectHandle) connectOnce() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failN {
		return errors.New("still down")
	}
	return nil
}

func (f *fakeReconnectHandle) isAutomaticReconnect() bool       { return f.automatic }
func (f *fakeReconnectHandle) maxReconnectDelay() time.Duration { return f.maxDelay }
func (f *fakeReconnectHandle) reconnectAttempted()              {}

func (f *fakeReconnectHandle) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestReconnectControllerDisabledDoesNothing(t *testing.T) {
	h := &fakeReconnectHandle{automatic: false}
	r := newReconnectController(h)
	r.connectionLost()

	time.Sleep(50 * time.Millisecond)
	if h.attemptCount() != 0 {
		t.Errorf("attemptCount() = %d, want 0 when automatic reconnect is disabled", h.attemptCount())
	}
}

func TestReconnectControllerRetriesUntilSuccess(t *testing.T) {
	h := &fakeReconnectHandle{automatic: true, maxDelay: time.Second, failN: 2}
	r := newReconnectController(h)
	r.delay = time.Millisecond // speed the test up without changing the doubling logic

	r.connectionLost()

	deadline := time.After(2 * time.Second)
	for h.attemptCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("attemptCount() = %d after timeout, want 3", h.attemptCount())
		case <-time.After(time.Millisecond):
		}
	}

	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running {
		t.Error("running should be false once connectOnce() succeeds")
	}
}

func TestReconnectControllerSecondConnectionLostIsIgnoredWhileRunning(t *testing.T) {
	h := &fakeReconnectHandle{automatic: true, maxDelay: time.Second, failN: 1000}
	r := newReconnectController(h)
	r.delay = time.Hour // never actually fires during the test

	r.connectionLost()
	r.connectionLost() // should be a no-op; only one cycle goroutine should be running

	time.Sleep(20 * time.Millisecond)
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		t.Error("running should still be true")
	}
	r.cancel()
}

func TestReconnectControllerDelayDoublesAndCaps(t *testing.T) {
	// Every attempt in the sampling window fails, so the delay read below is
	// the doubled-and-capped one, not the 1s reset a successful attempt makes.
	var failCount int32 = 1000
	h := &fakeReconnectHandle{automatic: true, maxDelay: 4 * time.Millisecond}
	h.failN = int(atomic.LoadInt32(&failCount))
	r := newReconnectController(h)
	r.delay = time.Millisecond

	r.connectionLost()
	time.Sleep(100 * time.Millisecond)

	r.mu.Lock()
	delay := r.delay
	r.mu.Unlock()
	if delay > h.maxReconnectDelay() {
		t.Errorf("delay = %v, must never exceed maxReconnectDelay %v", delay, h.maxReconnectDelay())
	}
	r.cancel()
}

func TestReconnectControllerCancelStopsCycle(t *testing.T) {
	h := &fakeReconnectHandle{automatic: true, maxDelay: time.Second, failN: 1000}
	r := newReconnectController(h)
	r.delay = time.Millisecond

	r.connectionLost()
	time.Sleep(20 * time.Millisecond)
	r.cancel()

	countAtCancel := h.attemptCount()
	time.Sleep(50 * time.Millisecond)
	if h.attemptCount() > countAtCancel+1 {
		t.Errorf("attempts kept growing after cancel(): %d -> %d", countAtCancel, h.attemptCount())
	}
}
