package mqtt

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// bufferedPublish is one publish waiting for a connection to send on. key
// is its persisted "b-<n>" record name, empty when PersistBuffer is off.
type bufferedPublish struct {
	msg   *Message
	token *Token
	key   string
}

// bufferRecord is the durable representation of one bufferedPublish,
// stored under keyB(n) so a restart can rebuild the buffer (§4.7,
// §8's crash-and-restart replay property extended to offline buffering).
type bufferRecord struct {
	Topic   string
	Payload []byte
	QoS     uint8
	Retain  bool
}

// offlineBuffer implements §4.7: while not connected, publishes are
// appended here instead of being sent, then drained in FIFO order on
// reconnect.
type offlineBuffer struct {
	mu          sync.Mutex
	opts        BufferOptions
	items       []bufferedPublish
	next        uint64
	persistence Persistence
}

func newOfflineBuffer(opts BufferOptions, p Persistence) *offlineBuffer {
	b := &offlineBuffer{opts: opts, persistence: p}
	if opts.Enabled && opts.PersistBuffer {
		b.restore()
	}
	return b
}

// restore reloads any b-<n> records a previous process persisted before
// exiting, in ascending n order, and advances next past the highest one
// found so newly enqueued messages don't collide with restored keys.
func (b *offlineBuffer) restore() {
	type found struct {
		n   uint64
		key string
	}
	var recs []found
	for _, key := range b.persistence.Keys() {
		n, ok := parseBufferKey(key)
		if !ok {
			continue
		}
		recs = append(recs, found{n: n, key: key})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].n < recs[j].n })

	for _, r := range recs {
		wire, ok := b.persistence.Get(r.key)
		if !ok {
			continue
		}
		var rec bufferRecord
		if err := json.Unmarshal(wire, &rec); err != nil {
			_ = b.persistence.Remove(r.key)
			continue
		}
		msg := &Message{Topic: rec.Topic, Payload: rec.Payload, QoS: rec.QoS, Retain: rec.Retain}
		b.items = append(b.items, bufferedPublish{msg: msg, token: newToken(), key: r.key})
		if r.n >= b.next {
			b.next = r.n + 1
		}
	}
}

func parseBufferKey(key string) (uint64, bool) {
	if !strings.HasPrefix(key, "b-") {
		return 0, false
	}
	n, err := strconv.ParseUint(key[len("b-"):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// enqueue appends msg to the buffer, applying the full-buffer policy.
// Returns false (and fails token) if the message was rejected.
func (b *offlineBuffer) enqueue(msg *Message, token *Token) bool {
	if !b.opts.Enabled {
		token.fail(newError(ClientNotConnected, nil))
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opts.BufferSize > 0 && len(b.items) >= b.opts.BufferSize {
		if !b.opts.DeleteOldestOnFull {
			token.fail(newError(DisconnectedBufferFull, nil))
			return false
		}
		oldest := b.items[0]
		oldest.token.fail(newError(DisconnectedBufferFull, nil))
		if oldest.key != "" {
			_ = b.persistence.Remove(oldest.key)
		}
		b.items = b.items[1:]
	}

	item := bufferedPublish{msg: msg, token: token}
	if b.opts.PersistBuffer {
		key := keyB(b.next)
		b.next++
		wire, err := json.Marshal(bufferRecord{Topic: msg.Topic, Payload: msg.Payload, QoS: msg.QoS, Retain: msg.Retain})
		if err == nil {
			_ = b.persistence.Put(key, wire)
			item.key = key
		}
	}

	b.items = append(b.items, item)
	return true
}

// drain removes and returns every buffered publish in FIFO order, for
// the sender to resubmit through the in-flight engine on reconnect.
func (b *offlineBuffer) drain() []bufferedPublish {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	for _, item := range items {
		if item.key != "" {
			_ = b.persistence.Remove(item.key)
		}
	}
	return items
}

func (b *offlineBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
