package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gomqtt-io/client/packet"
	"github.com/gomqtt-io/client/transport"
)

func TestNewClientDefaults(t *testing.T) {
	c := New()
	if c.State() != Disconnected {
		t.Errorf("State() = %v, want DISCONNECTED", c.State())
	}
	if c.ID() == "" {
		t.Error("ID() should default to a generated client id")
	}
}

func TestPublishBeforeConnectFailsWhenBufferingDisabled(t *testing.T) {
	c := New()
	tok := c.Publish("a/b", []byte("x"), 1, false)
	if err := tok.Wait(); err == nil {
		t.Error("Publish() before Connect() should fail when offline buffering is disabled")
	}
}

func TestPublishBeforeConnectBuffersWhenEnabled(t *testing.T) {
	c := New(BufferOpts(BufferOptions{Enabled: true, BufferSize: 10}))
	tok := c.Publish("a/b", []byte("x"), 1, false)

	select {
	case <-tok.Done():
		t.Error("a buffered publish should stay pending until a connection drains it")
	default:
	}
	if c.buffer.len() != 1 {
		t.Errorf("buffer.len() = %d, want 1", c.buffer.len())
	}
}

func TestSubscribeBeforeConnectFails(t *testing.T) {
	c := New()
	tok := c.Subscribe([]string{"a/b"}, []uint8{0}, nil)
	if err := tok.Wait(); err == nil {
		t.Error("Subscribe() before Connect() should fail")
	}
}

func TestUnsubscribeBeforeConnectFails(t *testing.T) {
	c := New()
	tok := c.Unsubscribe("a/b")
	if err := tok.Wait(); err == nil {
		t.Error("Unsubscribe() before Connect() should fail")
	}
}

func TestDeliverAckRoutesToRegisteredWaiter(t *testing.T) {
	c := New()
	waiter := c.registerAckWaiter(11)
	suback := &packet.SUBACK{FixedHeader: &packet.FixedHeader{}, PacketID: 11, ReasonCode: []packet.ReasonCode{packet.CodeGrantedQoS0}}

	c.deliverAck(11, suback)

	select {
	case pkt := <-waiter:
		if pkt != suback {
			t.Error("deliverAck() delivered the wrong packet")
		}
	case <-time.After(time.Second):
		t.Fatal("deliverAck() did not deliver to the registered waiter")
	}
}

func TestDeliverAckWithoutWaiterIsANoOp(t *testing.T) {
	c := New()
	// Should not panic or block when nothing is waiting on this id.
	c.deliverAck(999, &packet.PUBACK{FixedHeader: &packet.FixedHeader{}, PacketID: 999})
}

func TestHandleInboundRoutesPubackToInflight(t *testing.T) {
	c := New()
	tok := newToken()
	tok.MessageID = 3
	c.inflight.outbound[3] = &outboundRecord{id: 3, qos: 1, token: tok, phase: phaseSent}
	c.inflight.setID(3)

	c.handleInbound(&packet.PUBACK{FixedHeader: &packet.FixedHeader{}, PacketID: 3})

	if !tok.IsComplete() || tok.Error() != nil {
		t.Error("an inbound PUBACK should complete the matching outbound token")
	}
}

func TestHandlePublishQoS1AutoAcksByDefault(t *testing.T) {
	c := New()
	c.inflight.urgent = make(chan *job, 1)

	c.handlePublish(&packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{QoS: 1},
		PacketID:    4,
		Message:     &packet.Message{TopicName: "a", Content: []byte("x")},
	})

	select {
	case j := <-c.inflight.urgent:
		if j.pkt.Kind() != PUBACK {
			t.Errorf("auto-ack kind = %#x, want PUBACK", j.pkt.Kind())
		}
	default:
		t.Fatal("QoS1 inbound publish should auto-send a PUBACK")
	}
}

func TestHandlePublishQoS1WithManualAcksDefers(t *testing.T) {
	c := New()
	c.SetManualAcks(true)
	c.inflight.urgent = make(chan *job, 1)

	c.handlePublish(&packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{QoS: 1},
		PacketID:    4,
		Message:     &packet.Message{TopicName: "a", Content: []byte("x")},
	})

	select {
	case <-c.inflight.urgent:
		t.Fatal("manual-ack mode should not send PUBACK automatically")
	default:
	}

	if err := c.MessageArrivedComplete(4, 1); err != nil {
		t.Fatalf("MessageArrivedComplete() = %v, want nil", err)
	}
	select {
	case j := <-c.inflight.urgent:
		if j.pkt.Kind() != PUBACK {
			t.Errorf("deferred ack kind = %#x, want PUBACK", j.pkt.Kind())
		}
	default:
		t.Fatal("MessageArrivedComplete() should send the deferred PUBACK")
	}
}

func TestMessageArrivedCompleteWithoutPendingAckFails(t *testing.T) {
	c := New()
	if err := c.MessageArrivedComplete(123, 1); err == nil {
		t.Error("MessageArrivedComplete() should fail when there is no pending ack for the id")
	}
}

func TestPublishRejectsInvalidTopic(t *testing.T) {
	c := New()
	for _, topic := range []string{"", "a/+", "a/#", "a b"} {
		tok := c.Publish(topic, []byte("x"), 0, false)
		err := tok.Wait()
		var mqttErr *Error
		if !errors.As(err, &mqttErr) || mqttErr.Code != InvalidTopic {
			t.Errorf("Publish(%q, ...) error = %v, want InvalidTopic", topic, err)
		}
	}
}

// connackConn is a fake transport.Conn that answers CONNECT with a
// pre-packed CONNACK, for exercising handshake without a real broker.
type connackConn struct {
	in  *bytes.Buffer
	out bytes.Buffer
}

func newConnackConn(returnCode uint8) *connackConn {
	c := &connackConn{in: new(bytes.Buffer)}
	connack := &packet.CONNACK{
		FixedHeader:       &packet.FixedHeader{Version: packet.VERSION311, Kind: CONNACK},
		ConnectReturnCode: packet.ReasonCode{Code: returnCode},
	}
	_ = connack.Pack(c.in)
	return c
}

func (c *connackConn) Read(b []byte) (int, error)       { return c.in.Read(b) }
func (c *connackConn) Write(b []byte) (int, error)      { return c.out.Write(b) }
func (c *connackConn) Close() error                     { return nil }
func (c *connackConn) SetDeadline(time.Time) error      { return nil }
func (c *connackConn) SetReadDeadline(time.Time) error  { return nil }
func (c *connackConn) SetWriteDeadline(time.Time) error { return nil }

func TestHandshakeFailsFastOnNonZeroConnack(t *testing.T) {
	c := New(ServerURIs("tcp://first:1883", "tcp://second:1883"))
	dialed := 0
	c.dial = func(context.Context, string, *tls.Config) (transport.Conn, error) {
		dialed++
		return newConnackConn(0x05), nil // 0x05 = not authorized
	}

	_, _, err := c.handshake()

	if dialed != 1 {
		t.Errorf("dial called %d times, want 1: a non-zero CONNACK should fail fast without trying the next candidate", dialed)
	}
	var mqttErr *Error
	if !errors.As(err, &mqttErr) {
		t.Fatalf("handshake() error = %v, want a classified *Error", err)
	}
}

func TestHandshakeTriesNextCandidateOnTransportError(t *testing.T) {
	c := New(ServerURIs("tcp://unreachable:1883", "tcp://second:1883"))
	dialed := 0
	c.dial = func(context.Context, string, *tls.Config) (transport.Conn, error) {
		dialed++
		if dialed == 1 {
			return nil, fmt.Errorf("connection refused")
		}
		return newConnackConn(0x00), nil
	}

	conn, uri, err := c.handshake()

	if dialed != 2 {
		t.Errorf("dial called %d times, want 2: a transport error should move on to the next candidate", dialed)
	}
	if err != nil {
		t.Fatalf("handshake() error = %v, want nil once the second candidate accepts", err)
	}
	if uri != "tcp://second:1883" {
		t.Errorf("handshake() uri = %q, want the second candidate", uri)
	}
	if conn == nil {
		t.Error("handshake() should return the accepted connection")
	}
}

func connectedClient(t *testing.T) (*Client, *pipeConn) {
	t.Helper()
	c := New()
	if err := c.session.beginConnect(); err != nil {
		t.Fatalf("beginConnect() = %v", err)
	}
	c.session.connected()
	conn := newPipeConn()
	c.mu.Lock()
	c.conn = conn
	c.loopStop = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.mu.Unlock()
	go func() { _, _ = io.Copy(io.Discard, conn.r) }()
	return c, conn
}

func TestOnConnectionLostSkipsCallbackWhenIntentional(t *testing.T) {
	c, _ := connectedClient(t)
	c.mu.Lock()
	c.intentionalDisconnect = true
	c.mu.Unlock()

	called := false
	c.SetConnectionLostHandler(func(error) { called = true })

	c.onConnectionLost(fmt.Errorf("read past intentional close"))

	if called {
		t.Error("onConnectionLost() should not invoke connectionLostFn after an intentional disconnect")
	}
	if c.State() != Disconnected {
		t.Errorf("State() = %v, want DISCONNECTED", c.State())
	}
}

func TestOnConnectionLostFiresCallbackWhenUnintentional(t *testing.T) {
	c, _ := connectedClient(t)

	called := false
	c.SetConnectionLostHandler(func(error) { called = true })

	c.onConnectionLost(fmt.Errorf("broker went away"))

	if !called {
		t.Error("onConnectionLost() should invoke connectionLostFn when the disconnect was not requested by the user")
	}
}

func TestDisconnectForciblySkipsDisconnectPacketWhenAsked(t *testing.T) {
	c, conn := connectedClient(t)

	tok := c.disconnectForcibly(time.Millisecond, time.Millisecond, false)
	if err := tok.Wait(); err != nil {
		t.Fatalf("disconnectForcibly() = %v, want nil", err)
	}
	if c.State() != Disconnected {
		t.Errorf("State() = %v, want DISCONNECTED", c.State())
	}
	if _, err := conn.w.Write([]byte("x")); err == nil {
		t.Error("disconnectForcibly() should close the underlying connection")
	}
}

func TestKeepalivePingreqGoesThroughUrgentLane(t *testing.T) {
	c := New()
	c.inflight.urgent = make(chan *job, 1)
	ka := newKeepalive(time.Millisecond, c.sendUrgent, c.opts.Version, func() {})
	ka.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	ka.checkPing()

	select {
	case j := <-c.inflight.urgent:
		if j.pkt.Kind() != PINGREQ {
			t.Errorf("urgent job kind = %#x, want PINGREQ", j.pkt.Kind())
		}
	default:
		t.Fatal("checkPing() should enqueue PINGREQ on the urgent lane instead of writing to conn directly")
	}
}

func TestCloseForceClosesConnectionAndStopsLoop(t *testing.T) {
	c, conn := connectedClient(t)
	c.mu.Lock()
	stop := c.loopStop
	c.mu.Unlock()

	if err := c.Close(true); err != nil {
		t.Fatalf("Close(true) = %v", err)
	}

	select {
	case <-stop:
	default:
		t.Error("Close(true) should close loopStop so the running loops exit")
	}
	if _, err := conn.w.Write([]byte("x")); err == nil {
		t.Error("Close(true) should close the underlying connection")
	}
	if c.State() != Closed {
		t.Errorf("State() = %v, want CLOSED", c.State())
	}
}
