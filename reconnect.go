package mqtt

import (
	"sync"
	"time"
)

// reconnectHandle is the small surface the reconnect controller needs
// from the client, so the controller never reaches back into the whole
// Client (§9's replacement for the source's inner-class listener holding
// a client reference).
type reconnectHandle interface {
	connectOnce() error
	isAutomaticReconnect() bool
	maxReconnectDelay() time.Duration
	reconnectAttempted()
}

// reconnectController implements §4.6: on connection-lost, place the
// client into resting state and retry with exponentially doubling delay
// starting at 1s, until reconnection succeeds.
type reconnectController struct {
	handle reconnectHandle

	mu      sync.Mutex
	delay   time.Duration
	running bool
	stop    chan struct{}
}

const initialReconnectDelay = time.Second

func newReconnectController(h reconnectHandle) *reconnectController {
	return &reconnectController{handle: h, delay: initialReconnectDelay}
}

// connectionLost is called exactly once per CONNECTED→not-connected
// transition. It starts the reconnect cycle if enabled.
func (r *reconnectController) connectionLost() {
	if !r.handle.isAutomaticReconnect() {
		return
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	stop := r.stop
	r.mu.Unlock()

	go r.cycle(stop)
}

func (r *reconnectController) cycle(stop chan struct{}) {
	for {
		r.mu.Lock()
		delay := r.delay
		r.mu.Unlock()

		select {
		case <-stop:
			return
		case <-time.After(delay):
		}

		r.handle.reconnectAttempted()
		if err := r.handle.connectOnce(); err == nil {
			r.mu.Lock()
			r.running = false
			r.delay = initialReconnectDelay
			r.mu.Unlock()
			return
		}

		r.mu.Lock()
		if r.delay < r.handle.maxReconnectDelay() {
			r.delay *= 2
			if r.delay > r.handle.maxReconnectDelay() {
				r.delay = r.handle.maxReconnectDelay()
			}
		}
		r.mu.Unlock()
	}
}

// cancel aborts an in-progress reconnect cycle, used when the user
// explicitly closes the client.
func (r *reconnectController) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		close(r.stop)
		r.running = false
	}
}
