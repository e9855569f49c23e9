package mqtt

import (
	"sync"

	"github.com/gomqtt-io/client/packet"
)

// TokenState is the completion state of a Token.
type TokenState uint8

const (
	Pending TokenState = iota
	Complete
	Failed
)

// ActionCallback is invoked exactly once when a Token completes, either
// with success or with the error the Token failed with.
type ActionCallback func(token *Token, err error)

// Token is a one-shot future returned by every operation that requires a
// round trip with the broker (connect, publish at QoS>0, subscribe,
// unsubscribe, disconnect). It is owned jointly by the caller, who awaits
// it, and the in-flight engine, which completes it on the terminating ack.
type Token struct {
	mu   sync.Mutex
	done chan struct{}

	state TokenState
	err   error

	// UserContext is opaque data the caller attached at creation time,
	// returned unexamined alongside the completion callback.
	UserContext interface{}

	// MessageID is the assigned packet identifier for QoS>0 publishes and
	// for subscribe/unsubscribe; zero for QoS-0 publishes and connect.
	MessageID uint16

	// Topics holds the filters or topic name this token concerns, when
	// applicable (subscribe, unsubscribe, publish).
	Topics []string

	// Message is set for publish tokens once queued.
	Message *packet.Message

	// GrantedQoS is filled in on a subscribe token when SUBACK arrives.
	GrantedQoS []uint8

	callback ActionCallback
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// SetActionCallback registers a callback to run on completion. If the
// token has already completed, the callback runs immediately.
func (t *Token) SetActionCallback(cb ActionCallback) {
	t.mu.Lock()
	if t.state == Pending {
		t.callback = cb
		t.mu.Unlock()
		return
	}
	state, err := t.state, t.err
	t.mu.Unlock()
	if cb != nil {
		cb(t, errIfFailed(state, err))
	}
}

func errIfFailed(state TokenState, err error) error {
	if state == Failed {
		return err
	}
	return nil
}

// Wait blocks until the token completes and returns its error, if any.
func (t *Token) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done returns a channel closed when the token completes, for use in a
// select alongside a timer or context.
func (t *Token) Done() <-chan struct{} { return t.done }

func (t *Token) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != Pending
}

func (t *Token) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// complete marks the token successful exactly once and fires its callback.
func (t *Token) complete() {
	t.mu.Lock()
	if t.state != Pending {
		t.mu.Unlock()
		return
	}
	t.state = Complete
	cb := t.callback
	close(t.done)
	t.mu.Unlock()
	if cb != nil {
		cb(t, nil)
	}
}

// fail marks the token failed exactly once with err and fires its callback.
func (t *Token) fail(err error) {
	t.mu.Lock()
	if t.state != Pending {
		t.mu.Unlock()
		return
	}
	t.state, t.err = Failed, err
	cb := t.callback
	close(t.done)
	t.mu.Unlock()
	if cb != nil {
		cb(t, err)
	}
}
