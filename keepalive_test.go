package mqtt

import (
	"io"
	"testing"
	"time"

	"github.com/gomqtt-io/client/packet"
)

// pipeConn is a minimal transport.Conn backed by an in-memory pipe, used
// by tests elsewhere in the package that need a live connection.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipeConn() *pipeConn {
	r, w := io.Pipe()
	return &pipeConn{r: r, w: w}
}

func (c *pipeConn) Read(b []byte) (int, error)       { return c.r.Read(b) }
func (c *pipeConn) Write(b []byte) (int, error)      { return c.w.Write(b) }
func (c *pipeConn) Close() error                     { c.w.Close(); return c.r.Close() }
func (c *pipeConn) SetDeadline(time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(time.Time) error { return nil }

// collectSend returns a send func recording every packet handed to it,
// standing in for the urgent-lane enqueue keepalive drives in production.
func collectSend(ch chan<- packet.Packet) func(packet.Packet) {
	return func(pkt packet.Packet) { ch <- pkt }
}

func TestKeepaliveDisabledNeverTimesOut(t *testing.T) {
	timedOut := false
	k := newKeepalive(0, collectSend(make(chan packet.Packet, 1)), packet.VERSION311, func() { timedOut = true })
	k.checkPing()
	if timedOut {
		t.Error("checkPing() should be a no-op when interval is 0")
	}
}

func TestKeepaliveSendsPingWhenIdle(t *testing.T) {
	sent := make(chan packet.Packet, 1)
	k := newKeepalive(10*time.Millisecond, collectSend(sent), packet.VERSION311, func() {})
	k.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	k.checkPing()
	select {
	case pkt := <-sent:
		if pkt.Kind() != PINGREQ {
			t.Errorf("sent packet kind = %#x, want PINGREQ", pkt.Kind())
		}
	case <-time.After(time.Second):
		t.Fatal("checkPing() did not send a PINGREQ while idle")
	}
}

func TestKeepaliveOnPingRespClearsAwaiting(t *testing.T) {
	k := newKeepalive(time.Hour, collectSend(make(chan packet.Packet, 1)), packet.VERSION311, func() {})
	k.mu.Lock()
	k.awaiting = true
	k.mu.Unlock()

	k.onPingResp()

	k.mu.Lock()
	awaiting := k.awaiting
	k.mu.Unlock()
	if awaiting {
		t.Error("onPingResp() should clear the awaiting flag")
	}
}

func TestKeepaliveTimesOutWithoutPingResp(t *testing.T) {
	sent := make(chan packet.Packet, 1)
	timedOut := make(chan struct{})
	k := newKeepalive(5*time.Millisecond, collectSend(sent), packet.VERSION311, func() { close(timedOut) })
	k.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	k.checkPing() // sends PINGREQ, sets awaiting with a 5ms deadline
	<-sent
	time.Sleep(20 * time.Millisecond)
	k.checkPing() // deadline has passed, no PINGRESP arrived

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("checkPing() should declare a timeout once the ack deadline passes")
	}
}
