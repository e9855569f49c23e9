package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomqtt-io/client/packet"
)

// keepalive schedules PINGREQ and detects a silent server per §4.5. It is
// driven either by its own internal ticker or, on platforms where timers
// are undesirable, by repeated external calls to checkPing.
type keepalive struct {
	interval time.Duration
	send     func(packet.Packet)
	version  byte

	lastActivity atomic.Int64 // unix nanos

	mu        sync.Mutex
	awaiting  bool
	deadline  time.Time
	onTimeout func()
}

// newKeepalive schedules pings through send rather than writing to a
// connection directly, so PINGREQ shares the same urgent lane — and the
// same single writer goroutine — as every other outbound packet.
func newKeepalive(interval time.Duration, send func(packet.Packet), version byte, onTimeout func()) *keepalive {
	k := &keepalive{interval: interval, send: send, version: version, onTimeout: onTimeout}
	k.markActivity()
	return k
}

// markActivity resets the idle counter; any wire write does this.
func (k *keepalive) markActivity() {
	k.lastActivity.Store(time.Now().UnixNano())
}

// onPingResp clears the outstanding-ping flag.
func (k *keepalive) onPingResp() {
	k.mu.Lock()
	k.awaiting = false
	k.mu.Unlock()
}

// checkPing is the host-driven entry point: call it periodically (or from
// an internal ticker via run) and it sends PINGREQ or declares the
// connection lost as needed.
func (k *keepalive) checkPing() {
	if k.interval <= 0 {
		return
	}
	now := time.Now()

	k.mu.Lock()
	if k.awaiting {
		if now.After(k.deadline) {
			k.mu.Unlock()
			k.onTimeout()
			return
		}
		k.mu.Unlock()
		return
	}
	last := time.Unix(0, k.lastActivity.Load())
	if now.Sub(last) < k.interval {
		k.mu.Unlock()
		return
	}
	k.awaiting = true
	k.deadline = now.Add(k.interval)
	k.mu.Unlock()

	pingreq := &packet.PINGREQ{FixedHeader: &packet.FixedHeader{Version: k.version, Kind: PINGREQ}}
	k.send(pingreq)
	k.markActivity()
}

// run drives checkPing on an internal ticker until stop is closed.
func (k *keepalive) run(stop <-chan struct{}) {
	if k.interval <= 0 {
		return
	}
	tick := time.NewTicker(k.interval / 4)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			k.checkPing()
		}
	}
}
