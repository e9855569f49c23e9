package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomqtt-io/client/packet"
	"github.com/gomqtt-io/client/transport"
	"golang.org/x/sync/errgroup"
)

// Client is an asynchronous MQTT 3.1.1 client. Its zero value is not
// usable; construct one with New. A Client is safe for concurrent use by
// multiple goroutines once Connect has been called.
type Client struct {
	opts Options

	session   *session
	inflight  *inflight
	dispatch  *dispatcher
	buffer    *offlineBuffer
	reconnect *reconnectController
	stat      *Stat

	// dial opens a transport.Conn for one candidate URI. It defaults to
	// transport.Dial; tests substitute a fake to exercise handshake's
	// multi-URI fail-fast/try-next-candidate logic without a real broker.
	dial func(ctx context.Context, uri string, tlsConfig *tls.Config) (transport.Conn, error)

	mu                    sync.Mutex
	conn                  transport.Conn
	currentURI            string
	keepalive             *keepalive
	loopStop              chan struct{}
	stopOnce              *sync.Once
	intentionalDisconnect bool

	manualAcks  bool
	pendingAcks map[uint16]byte
	ackWaiters  map[uint16]chan packet.Packet

	connectionLostFn func(error)
}

// New constructs a Client in the DISCONNECTED state with persistence
// opened for (clientId, first server URI).
func New(opts ...Option) *Client {
	options := newOptions(opts...)

	c := &Client{
		opts:        options,
		session:     &session{},
		inflight:    newInflight(options.Persistence, options.MaxInflight),
		dispatch:    newDispatcher(),
		stat:        newStat(options.ClientID),
		pendingAcks: make(map[uint16]byte),
		ackWaiters:  make(map[uint16]chan packet.Packet),
		dial:        transport.Dial,
	}
	c.reconnect = newReconnectController(c)

	primary := ""
	if len(options.ServerURIs) > 0 {
		primary = options.ServerURIs[0]
	}
	_ = options.Persistence.Open(options.ClientID, primary)
	c.inflight.restore(options.Version, options.CleanSession)
	c.buffer = newOfflineBuffer(options.BufferOpts, options.Persistence)

	return c
}

func (c *Client) ID() string             { return c.opts.ClientID }
func (c *Client) State() SessionState    { return c.session.get() }
func (c *Client) CurrentServerURI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentURI
}

// SetCallback installs the global handler invoked for inbound messages
// that no subscribed filter matched.
func (c *Client) SetCallback(h DefaultHandler) { c.dispatch.setDefaultHandler(h) }

// SetConnectionLostHandler installs the callback fired exactly once per
// CONNECTED→not-connected transition.
func (c *Client) SetConnectionLostHandler(h func(error)) { c.connectionLostFn = h }

// SetManualAcks toggles manual acknowledgement mode (§4.3).
func (c *Client) SetManualAcks(manual bool) { c.manualAcks = manual }

// Connect opens the connection: iterates candidate server URIs, performs
// the MQTT handshake, and on success starts the sender/receiver/keepalive
// loops. See §4.1, §4.2.
func (c *Client) Connect() *Token {
	token := newToken()
	if err := c.session.beginConnect(); err != nil {
		token.fail(err)
		return token
	}
	c.mu.Lock()
	c.intentionalDisconnect = false
	c.mu.Unlock()
	c.stat.ConnectionState.Set(float64(c.session.get()))

	go func() {
		if err := c.connectOnce(); err != nil {
			c.session.handshakeFailed()
			c.stat.ConnectionState.Set(float64(c.session.get()))
			token.fail(err)
			return
		}
		c.session.connected()
		c.stat.ConnectionState.Set(float64(c.session.get()))
		c.stat.ActiveConnections.Set(1)
		c.stat.refreshUptime()
		token.complete()
	}()
	return token
}

// connectOnce performs one full handshake-and-run cycle. It implements
// reconnectHandle so the reconnect controller can drive it directly.
func (c *Client) connectOnce() error {
	conn, uri, err := c.handshake()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.currentURI = uri
	c.loopStop = make(chan struct{})
	c.stopOnce = &sync.Once{}
	stop := c.loopStop
	c.mu.Unlock()

	c.replayOnReconnect()
	c.drainOfflineBuffer()

	go c.runLoops(conn, stop)
	return nil
}

// handshake implements §4.2: try each candidate URI in order, returning
// the first that accepts the connection. A transport error or timeout
// moves on to the next candidate; a broker-level rejection (non-zero
// CONNACK return code) fails fast instead, since retrying a different
// URI won't fix bad credentials or a rejected client id.
func (c *Client) handshake() (transport.Conn, string, error) {
	var lastErr error
	for _, uri := range c.opts.ServerURIs {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectionTimeout)
		conn, err := c.dial(ctx, uri, c.opts.TLSConfig)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		connect := &packet.CONNECT{
			FixedHeader:  &packet.FixedHeader{Version: c.opts.Version, Kind: CONNECT},
			ClientID:     c.opts.ClientID,
			KeepAlive:    uint16(c.opts.KeepAliveInterval / time.Second),
			CleanSession: c.opts.CleanSession,
			Username:     c.opts.Username,
			Password:     c.opts.Password,
		}
		if c.opts.Will != nil {
			connect.Will = &packet.Will{Topic: c.opts.Will.Topic, Message: c.opts.Will.Payload, QoS: c.opts.Will.QoS, Retain: c.opts.Will.Retain}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.ConnectionTimeout))
		if err := connect.Pack(conn); err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ConnectionTimeout))
		pkt, err := packet.Unpack(c.opts.Version, conn)
		_ = conn.SetReadDeadline(time.Time{})
		if err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}
		connack, ok := pkt.(*packet.CONNACK)
		if !ok {
			_ = conn.Close()
			lastErr = newError(ProtocolError, fmt.Errorf("expected CONNACK, got %T", pkt))
			continue
		}
		if connack.ConnectReturnCode.Code != 0 {
			_ = conn.Close()
			return nil, "", classifyConnack(connack.ConnectReturnCode)
		}

		_ = conn.SetWriteDeadline(time.Time{})
		return conn, uri, nil
	}
	if lastErr == nil {
		lastErr = newError(BrokerUnavailable, fmt.Errorf("no server URIs configured"))
	}
	return nil, "", lastErr
}

func classifyConnack(rc packet.ReasonCode) error {
	switch rc.Code {
	case 0x01, 0x02:
		return newError(ProtocolError, rc)
	case 0x04:
		return newError(BrokerUnavailable, rc)
	default:
		return newError(BrokerUnavailable, rc)
	}
}

// runLoops drives sender, receiver and keepalive for one connection
// lifetime, until either loop reports connection-lost. The first loop to
// exit (or a keepalive timeout) closes stop and conn so the others exit
// too; onConnectionLost then runs once, after all three have returned.
func (c *Client) runLoops(conn transport.Conn, stop chan struct{}) {
	var timedOut atomic.Bool
	c.mu.Lock()
	once := c.stopOnce
	halt := func() { once.Do(func() { close(stop) }); _ = conn.Close() }
	c.keepalive = newKeepalive(c.opts.KeepAliveInterval, c.sendUrgent, c.opts.Version, func() { timedOut.Store(true); halt() })
	ka := c.keepalive
	c.mu.Unlock()

	group, _ := errgroup.WithContext(context.Background())
	group.Go(func() error { defer halt(); return c.senderLoop(conn, stop) })
	group.Go(func() error { defer halt(); return c.receiverLoop(conn, stop) })
	group.Go(func() error {
		ka.run(stop)
		return nil
	})

	err := group.Wait()
	if timedOut.Load() {
		err = newError(ClientTimeout, nil)
	}
	c.onConnectionLost(err)
}

func (c *Client) senderLoop(conn transport.Conn, stop chan struct{}) error {
	for {
		var j *job
		select {
		case j = <-c.inflight.urgent:
		default:
			select {
			case <-stop:
				return nil
			case j = <-c.inflight.urgent:
			case j = <-c.inflight.queue:
			}
		}
		if err := j.pkt.Pack(countingWriter{w: conn, ctr: c.stat.ByteSent}); err != nil {
			return err
		}
		c.stat.PacketSent.Inc()
		c.keepaliveMark()
		if j.onSent != nil {
			j.onSent()
		}
	}
}

func (c *Client) keepaliveMark() {
	c.mu.Lock()
	ka := c.keepalive
	c.mu.Unlock()
	if ka != nil {
		ka.markActivity()
	}
}

func (c *Client) receiverLoop(conn transport.Conn, stop chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		pkt, err := packet.Unpack(c.opts.Version, countingReader{r: conn, ctr: c.stat.ByteReceived})
		if err != nil {
			return err
		}
		c.stat.PacketReceived.Inc()
		c.handleInbound(pkt)
	}
}

func (c *Client) handleInbound(pkt packet.Packet) {
	switch p := pkt.(type) {
	case *packet.PUBACK:
		c.inflight.handlePuback(p.PacketID)
	case *packet.PUBREC:
		c.inflight.handlePubrec(p.PacketID, c.opts.Version)
	case *packet.PUBCOMP:
		c.inflight.handlePubcomp(p.PacketID)
	case *packet.PUBLISH:
		c.handlePublish(p)
	case *packet.PUBREL:
		c.handlePubrel(p)
	case *packet.PINGRESP:
		c.mu.Lock()
		ka := c.keepalive
		c.mu.Unlock()
		if ka != nil {
			ka.onPingResp()
		}
	case *packet.SUBACK:
		c.deliverAck(p.PacketID, p)
	case *packet.UNSUBACK:
		c.deliverAck(p.PacketID, p)
	}
	c.stat.InFlightGauge.Set(float64(c.inflight.outboundCount()))
}

// deliverAck hands an ack packet to whichever Subscribe/Unsubscribe call
// is waiting on its packet id, if any.
func (c *Client) deliverAck(id uint16, pkt packet.Packet) {
	c.mu.Lock()
	ch, ok := c.ackWaiters[id]
	c.mu.Unlock()
	if ok {
		ch <- pkt
	}
}

func (c *Client) handlePublish(p *packet.PUBLISH) {
	res := c.inflight.handleInboundPublish(p)
	msg := &Message{Topic: p.Message.TopicName, Payload: p.Message.Content, QoS: p.QoS, Retain: p.Retain != 0, Duplicate: p.Dup != 0}

	if res.dispatch {
		c.dispatch.dispatch(msg)
	}

	switch res.ackKind {
	case PUBACK:
		if c.manualAcks {
			c.mu.Lock()
			c.pendingAcks[p.PacketID] = PUBACK
			c.mu.Unlock()
			return
		}
		c.sendUrgent(&packet.PUBACK{FixedHeader: &packet.FixedHeader{Version: c.opts.Version, Kind: PUBACK}, PacketID: p.PacketID})
	case PUBREC:
		// PUBREC always goes out immediately; it is protocol bookkeeping,
		// not application-level acknowledgement.
		c.sendUrgent(&packet.PUBREC{FixedHeader: &packet.FixedHeader{Version: c.opts.Version, Kind: PUBREC}, PacketID: p.PacketID})
	}
}

func (c *Client) handlePubrel(p *packet.PUBREL) {
	if c.manualAcks {
		c.mu.Lock()
		c.pendingAcks[p.PacketID] = PUBCOMP
		c.mu.Unlock()
		return
	}
	c.inflight.handlePubrel(p.PacketID)
	c.sendUrgent(&packet.PUBCOMP{FixedHeader: &packet.FixedHeader{Version: c.opts.Version, Kind: PUBCOMP}, PacketID: p.PacketID})
}

// MessageArrivedComplete performs the deferred ack step for a message
// received under manual-ack mode (§4.3). qos is accepted but unused; the
// ack kind was already fixed by pendingAcks[id] when the message arrived,
// it's kept only so the method's signature matches the public API shape.
func (c *Client) MessageArrivedComplete(id uint16, qos uint8) error {
	c.mu.Lock()
	kind, ok := c.pendingAcks[id]
	delete(c.pendingAcks, id)
	c.mu.Unlock()
	if !ok {
		return newError(ProtocolError, fmt.Errorf("no pending ack for id %d", id))
	}
	switch kind {
	case PUBACK:
		c.sendUrgent(&packet.PUBACK{FixedHeader: &packet.FixedHeader{Version: c.opts.Version, Kind: PUBACK}, PacketID: id})
	case PUBCOMP:
		c.inflight.handlePubrel(id)
		c.sendUrgent(&packet.PUBCOMP{FixedHeader: &packet.FixedHeader{Version: c.opts.Version, Kind: PUBCOMP}, PacketID: id})
	}
	return nil
}

// sendUrgent enqueues pkt on the urgent lane senderLoop drains ahead of
// the normal publish queue — acks, PUBREL, SUBSCRIBE/UNSUBSCRIBE, and
// PINGREQ all go through here so every write to conn happens from the
// single senderLoop goroutine and no packet's bytes can interleave with
// another's (§5 "Sender writes packets atomically").
func (c *Client) sendUrgent(pkt packet.Packet) {
	select {
	case c.inflight.urgent <- &job{pkt: pkt}:
	default:
	}
}

// Publish queues msg for delivery. If not CONNECTED, it is buffered
// offline when enabled, otherwise the token fails immediately (§4.1).
func (c *Client) Publish(topicName string, payload []byte, qos uint8, retain bool) *Token {
	token := newToken()
	token.Topics = []string{topicName}

	if err := validatePublishTopic(topicName); err != nil {
		token.fail(err)
		return token
	}
	msg := &Message{Topic: topicName, Payload: payload, QoS: qos, Retain: retain}

	if !c.session.requireConnected() {
		if c.opts.BufferOpts.Enabled {
			c.buffer.enqueue(msg, token)
		} else {
			token.fail(newError(ClientNotConnected, nil))
		}
		return token
	}
	_ = c.inflight.publish(msg, c.opts.Version, token)
	c.stat.InFlightGauge.Set(float64(c.inflight.outboundCount()))
	return token
}

// Subscribe requests subscriptions for filters at the paired qos levels,
// optionally with a per-filter handler (nil falls back to the default
// handler). The dispatch table is updated optimistically (§4.8).
func (c *Client) Subscribe(filters []string, qos []uint8, handlers []Handler) *Token {
	token := newToken()
	token.Topics = filters

	if !c.session.requireConnected() {
		token.fail(newError(ClientNotConnected, nil))
		return token
	}

	id, err := c.inflight.nextID()
	if err != nil {
		token.fail(err)
		return token
	}
	token.MessageID = id

	subs := make([]packet.Subscription, len(filters))
	for i, f := range filters {
		subs[i] = packet.Subscription{TopicFilter: f, MaximumQoS: qos[i]}
		var h Handler
		if handlers != nil && i < len(handlers) {
			h = handlers[i]
		}
		c.dispatch.subscribeOptimistic(f, qos[i], h)
	}

	sub := &packet.SUBSCRIBE{
		FixedHeader:   &packet.FixedHeader{Version: c.opts.Version, Kind: SUBSCRIBE, QoS: 1},
		PacketID:      id,
		Subscriptions: subs,
	}

	go c.awaitSuback(sub, token, filters)
	return token
}

func (c *Client) registerAckWaiter(id uint16) chan packet.Packet {
	ch := make(chan packet.Packet, 1)
	c.mu.Lock()
	c.ackWaiters[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) unregisterAckWaiter(id uint16) {
	c.mu.Lock()
	delete(c.ackWaiters, id)
	c.mu.Unlock()
}

func (c *Client) awaitSuback(sub *packet.SUBSCRIBE, token *Token, filters []string) {
	done := c.registerAckWaiter(sub.PacketID)
	defer c.unregisterAckWaiter(sub.PacketID)

	select {
	case c.inflight.urgent <- &job{pkt: sub}:
	default:
		c.inflight.freeID(sub.PacketID)
		token.fail(newError(WriteTimeout, fmt.Errorf("send queue full")))
		return
	}

	select {
	case pkt := <-done:
		c.inflight.freeID(sub.PacketID)
		suback, ok := pkt.(*packet.SUBACK)
		if !ok {
			token.fail(newError(ProtocolError, fmt.Errorf("unexpected ack for SUBSCRIBE: %T", pkt)))
			return
		}
		granted := make([]uint8, len(suback.ReasonCode))
		failed := false
		for i, rc := range suback.ReasonCode {
			granted[i] = rc.Code
			if rc.Code == 0x80 {
				failed = true
				if i < len(filters) {
					c.dispatch.rollback(filters[i])
				}
			}
		}
		token.GrantedQoS = granted
		if failed {
			token.fail(newError(SubscribeFailed, nil))
			return
		}
		token.complete()
	case <-time.After(c.opts.ConnectionTimeout):
		c.inflight.freeID(sub.PacketID)
		token.fail(newError(WriteTimeout, fmt.Errorf("timed out waiting for SUBACK")))
	}
}

// Unsubscribe removes the handler for each filter immediately, then
// sends UNSUBSCRIBE.
func (c *Client) Unsubscribe(filters ...string) *Token {
	token := newToken()
	token.Topics = filters

	if !c.session.requireConnected() {
		token.fail(newError(ClientNotConnected, nil))
		return token
	}
	for _, f := range filters {
		c.dispatch.unsubscribe(f)
	}

	id, err := c.inflight.nextID()
	if err != nil {
		token.fail(err)
		return token
	}
	token.MessageID = id

	subs := make([]packet.Subscription, len(filters))
	for i, f := range filters {
		subs[i] = packet.Subscription{TopicFilter: f}
	}
	unsub := &packet.UNSUBSCRIBE{
		FixedHeader:   &packet.FixedHeader{Version: c.opts.Version, Kind: UNSUBSCRIBE, QoS: 1},
		PacketID:      id,
		Subscriptions: subs,
	}
	go c.awaitUnsuback(unsub, token)
	return token
}

func (c *Client) awaitUnsuback(unsub *packet.UNSUBSCRIBE, token *Token) {
	done := c.registerAckWaiter(unsub.PacketID)
	defer c.unregisterAckWaiter(unsub.PacketID)

	select {
	case c.inflight.urgent <- &job{pkt: unsub}:
	default:
		c.inflight.freeID(unsub.PacketID)
		token.fail(newError(WriteTimeout, fmt.Errorf("send queue full")))
		return
	}

	select {
	case <-done:
		c.inflight.freeID(unsub.PacketID)
		token.complete()
	case <-time.After(c.opts.ConnectionTimeout):
		c.inflight.freeID(unsub.PacketID)
		token.fail(newError(WriteTimeout, fmt.Errorf("timed out waiting for UNSUBACK")))
	}
}

// teardownConn stops the sender/receiver/keepalive loops and closes the
// connection. stopOnce guards against closing loopStop twice when a
// user-initiated teardown races the loops' own error path in runLoops.
func (c *Client) teardownConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	stop := c.loopStop
	once := c.stopOnce
	c.mu.Unlock()

	if once != nil && stop != nil {
		once.Do(func() { close(stop) })
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Disconnect transitions to DISCONNECTING, waits up to quiesce for
// in-flight publishes to reach terminal acks, then sends DISCONNECT and
// closes the transport (§5).
func (c *Client) Disconnect(quiesce time.Duration) *Token {
	token := newToken()
	if !c.session.beginDisconnect() {
		token.fail(newError(ClientNotConnected, nil))
		return token
	}
	c.mu.Lock()
	c.intentionalDisconnect = true
	c.mu.Unlock()
	c.stat.ConnectionState.Set(float64(c.session.get()))

	go func() {
		deadline := time.After(quiesce)
	wait:
		for {
			select {
			case <-deadline:
				break wait
			default:
				if c.inflight.outboundCount() == 0 {
					break wait
				}
				time.Sleep(10 * time.Millisecond)
			}
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			disconnect := &packet.DISCONNECT{FixedHeader: &packet.FixedHeader{Version: c.opts.Version, Kind: DISCONNECT}}
			_ = disconnect.Pack(conn)
		}
		c.teardownConn()

		c.stat.ActiveConnections.Set(0)
		c.stat.stopUptime()
		c.session.disconnected()
		c.stat.ConnectionState.Set(float64(c.session.get()))
		token.complete()
	}()
	return token
}

// disconnectForcibly implements §5's forced-disconnect operation: unlike
// Disconnect, it does not require the session to be CONNECTED, puts its
// own deadline on the DISCONNECT packet write and can skip that packet
// entirely, for callers that just need the transport gone. quiesceTimeout
// bounds how long it waits for the in-flight window to drain before
// giving up and closing anyway; disconnectTimeout bounds how long it
// waits for the DISCONNECT packet write itself.
func (c *Client) disconnectForcibly(quiesceTimeout, disconnectTimeout time.Duration, sendDisconnectPacket bool) *Token {
	token := newToken()
	c.mu.Lock()
	c.intentionalDisconnect = true
	wasConnected := c.session.get() == Connected
	c.mu.Unlock()
	if wasConnected {
		c.session.beginDisconnect()
	}
	c.stat.ConnectionState.Set(float64(c.session.get()))

	go func() {
		deadline := time.After(quiesceTimeout)
	wait:
		for {
			select {
			case <-deadline:
				break wait
			default:
				if c.inflight.outboundCount() == 0 {
					break wait
				}
				time.Sleep(10 * time.Millisecond)
			}
		}

		if sendDisconnectPacket {
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn != nil {
				_ = conn.SetWriteDeadline(time.Now().Add(disconnectTimeout))
				disconnect := &packet.DISCONNECT{FixedHeader: &packet.FixedHeader{Version: c.opts.Version, Kind: DISCONNECT}}
				_ = disconnect.Pack(conn)
				_ = conn.SetWriteDeadline(time.Time{})
			}
		}
		c.teardownConn()

		c.stat.ActiveConnections.Set(0)
		c.stat.stopUptime()
		c.session.disconnected()
		c.stat.ConnectionState.Set(float64(c.session.get()))
		token.complete()
	}()
	return token
}

// Close releases persistence. Legal only from DISCONNECTED unless force
// is set, in which case it tears down regardless of current state.
func (c *Client) Close(force bool) error {
	if force {
		c.mu.Lock()
		c.intentionalDisconnect = true
		c.mu.Unlock()
		c.reconnect.cancel()
		c.teardownConn()
		c.stat.ActiveConnections.Set(0)
		c.stat.stopUptime()
		c.session.forceClose()
		c.stat.ConnectionState.Set(float64(c.session.get()))
	} else if err := c.session.beginClose(); err != nil {
		return err
	} else {
		c.stat.ConnectionState.Set(float64(c.session.get()))
	}
	return c.opts.Persistence.Close()
}

// Reconnect forces an immediate reconnect attempt outside the normal
// backoff schedule.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	c.intentionalDisconnect = false
	c.mu.Unlock()
	return c.connectOnce()
}

func (c *Client) isAutomaticReconnect() bool       { return c.opts.AutomaticReconnect }
func (c *Client) maxReconnectDelay() time.Duration { return c.opts.MaxReconnectDelay }
func (c *Client) reconnectAttempted()              { c.stat.ReconnectAttempts.Inc() }

func (c *Client) onConnectionLost(err error) {
	c.mu.Lock()
	intentional := c.intentionalDisconnect
	c.mu.Unlock()

	c.session.beginDisconnect()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.stat.ActiveConnections.Set(0)
	c.stat.stopUptime()
	c.session.disconnected()
	c.stat.ConnectionState.Set(float64(c.session.get()))

	if intentional {
		return
	}

	if c.connectionLostFn != nil {
		c.connectionLostFn(err)
	}
	c.reconnect.connectionLost()
}

// replayOnReconnect implements §4.6's replay ordering: PUBRELs first,
// then dup PUBLISHes, honored only when cleanSession=false.
func (c *Client) replayOnReconnect() {
	if c.opts.CleanSession {
		return
	}
	pubrels, publishes := c.inflight.pendingReplay()
	for _, id := range pubrels {
		c.inflight.replayPubrel(id, c.opts.Version)
	}
	for _, rec := range publishes {
		c.inflight.replayPublish(rec, c.opts.Version)
	}
}

func (c *Client) drainOfflineBuffer() {
	for _, item := range c.buffer.drain() {
		_ = c.inflight.publish(item.msg, c.opts.Version, item.token)
	}
	c.stat.InFlightGauge.Set(float64(c.inflight.outboundCount()))
}
