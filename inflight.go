package mqtt

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gomqtt-io/client/packet"
)

// outboundPhase is the ack-progress of one outbound QoS>=1 publish.
type outboundPhase uint8

const (
	phaseSent outboundPhase = iota
	phasePubrecReceived
)

// outboundRecord is one row of the outbound_pending table (§4.3).
type outboundRecord struct {
	id      uint16
	qos     uint8
	message *Message
	token   *Token
	phase   outboundPhase
	dup     bool
}

// waitingPublish is a QoS>=1 publish that has not yet been admitted onto
// the wire because max_inflight is already full. It holds no message id
// and no persisted record until admit() lets it in (§4.3 "In-flight
// window": the sender enqueues unboundedly, excess waits in FIFO order).
type waitingPublish struct {
	msg     *Message
	version byte
	token   *Token
}

// job is one packet queued for the sender loop, with a completion hook
// run once the write succeeds.
type job struct {
	pkt    packet.Packet
	onSent func()
}

// inflight is the in-flight message engine: message-ID allocation,
// pending-ack tables, the send queue, and replay bookkeeping. One
// instance is owned per Client and survives across reconnects.
type inflight struct {
	mu sync.Mutex

	// bitmap tracks ids in [1,65535] currently assigned; bit N%64 of
	// word N/64 corresponds to id N.
	bitmap [1024]uint64
	cursor uint16

	outbound map[uint16]*outboundRecord
	inbound  map[uint16]struct{}
	waiting  []*waitingPublish

	maxInflight int
	sentCount   int

	persistence Persistence

	queue  chan *job
	urgent chan *job
}

func newInflight(p Persistence, maxInflight int) *inflight {
	return &inflight{
		outbound:    make(map[uint16]*outboundRecord),
		inbound:     make(map[uint16]struct{}),
		maxInflight: maxInflight,
		persistence: p,
		queue:       make(chan *job, 4096),
		urgent:      make(chan *job, 64),
	}
}

func (in *inflight) idUsed(id uint16) bool {
	return in.bitmap[id/64]&(1<<(id%64)) != 0
}

func (in *inflight) setID(id uint16)   { in.bitmap[id/64] |= 1 << (id % 64) }
func (in *inflight) clearID(id uint16) { in.bitmap[id/64] &^= 1 << (id % 64) }

// nextID allocates the next free message id in [1,65535], scanning from
// the cursor and wrapping at most once.
func (in *inflight) nextID() (uint16, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	start := in.cursor
	if start == 0 {
		start = 65535
	}
	for {
		in.cursor++
		if in.cursor == 0 {
			in.cursor = 1
		}
		if !in.idUsed(in.cursor) {
			in.setID(in.cursor)
			return in.cursor, nil
		}
		if in.cursor == start {
			return 0, newError(NoMessageIDsAvailable, nil)
		}
	}
}

func (in *inflight) freeID(id uint16) {
	in.mu.Lock()
	in.clearID(id)
	in.mu.Unlock()
}

// publish begins the send path for a message (§4.3 "Send path"). QoS-0
// messages bypass the in-flight window entirely since they carry no ack
// cycle. QoS>=1 messages reserve a window slot; if max_inflight is
// already full, the publish is parked in FIFO order and admitted later
// by releaseSlot, per §4.3's "In-flight window" rule.
func (in *inflight) publish(msg *Message, version byte, token *Token) error {
	if msg.QoS == 0 {
		wireMsg := &packet.Message{TopicName: msg.Topic, Content: msg.Payload}
		pub := &packet.PUBLISH{FixedHeader: &packet.FixedHeader{Version: version, Kind: PUBLISH, QoS: 0, Retain: b2u(msg.Retain)}, Message: wireMsg}
		token.MessageID = 0
		token.Message = wireMsg
		select {
		case in.queue <- &job{pkt: pub, onSent: token.complete}:
		default:
			return newError(WriteTimeout, fmt.Errorf("send queue full"))
		}
		return nil
	}

	in.mu.Lock()
	admitted := in.sentCount < in.maxInflight
	if admitted {
		in.sentCount++
	} else {
		in.waiting = append(in.waiting, &waitingPublish{msg: msg, version: version, token: token})
	}
	in.mu.Unlock()

	if !admitted {
		return nil
	}
	return in.admit(msg, version, token)
}

// admit assigns a message id, persists the wire bytes, tracks the
// outbound record, and enqueues the packet for the sender loop. Callers
// must already hold a reserved window slot (in.sentCount incremented).
func (in *inflight) admit(msg *Message, version byte, token *Token) error {
	wireMsg := &packet.Message{TopicName: msg.Topic, Content: msg.Payload}

	id, err := in.nextID()
	if err != nil {
		in.releaseSlot()
		token.fail(err)
		return err
	}

	pub := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: version, Kind: PUBLISH, QoS: msg.QoS, Retain: b2u(msg.Retain)},
		PacketID:    id,
		Message:     wireMsg,
	}

	buf := packet.GetBuffer()
	if err := pub.Pack(buf); err != nil {
		packet.PutBuffer(buf)
		in.freeID(id)
		in.releaseSlot()
		token.fail(newError(ProtocolError, err))
		return err
	}
	wire := append([]byte(nil), buf.Bytes()...)
	packet.PutBuffer(buf)

	if err := in.persistence.Put(keyS(id), wire); err != nil {
		in.freeID(id)
		in.releaseSlot()
		token.fail(newError(PersistenceFailure, err))
		return err
	}

	token.MessageID = id
	token.Message = wireMsg
	in.mu.Lock()
	in.outbound[id] = &outboundRecord{id: id, qos: msg.QoS, message: msg, token: token, phase: phaseSent}
	in.mu.Unlock()

	select {
	case in.queue <- &job{pkt: pub}:
	default:
		return newError(WriteTimeout, fmt.Errorf("send queue full"))
	}
	return nil
}

// releaseSlot gives back one in-flight window slot. If a publish is
// waiting in FIFO order, the slot is handed directly to it instead of
// being freed, so the window never sits idle while work is queued.
func (in *inflight) releaseSlot() {
	in.mu.Lock()
	var next *waitingPublish
	if len(in.waiting) > 0 {
		next = in.waiting[0]
		in.waiting = in.waiting[1:]
	} else {
		in.sentCount--
	}
	in.mu.Unlock()

	if next != nil {
		_ = in.admit(next.msg, next.version, next.token)
	}
}

// replayPubrel re-sends a PUBREL that was persisted under sb-<id> for a
// pending record still awaiting PUBCOMP after a reconnect.
func (in *inflight) replayPubrel(id uint16, version byte) {
	pubrel := &packet.PUBREL{FixedHeader: &packet.FixedHeader{Version: version, Kind: PUBREL, QoS: 1}, PacketID: id}
	in.urgent <- &job{pkt: pubrel}
}

// replayPublish re-sends a still-unacknowledged PUBLISH with dup=true.
func (in *inflight) replayPublish(rec *outboundRecord, version byte) {
	rec.dup = true
	pub := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: version, Kind: PUBLISH, QoS: rec.qos, Dup: 1, Retain: b2u(rec.message.Retain)},
		PacketID:    rec.id,
		Message:     &packet.Message{TopicName: rec.message.Topic, Content: rec.message.Payload},
	}
	in.queue <- &job{pkt: pub}
}

// pendingReplay returns, under cleanSession=false, the records to
// retransmit on reconnect: PUBRELs first, then dup PUBLISHes, per §4.6.
// Publishes still waiting for a window slot are not replayed here; they
// simply remain queued until releaseSlot admits them.
func (in *inflight) pendingReplay() (pubrels []uint16, publishes []*outboundRecord) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for id, rec := range in.outbound {
		switch rec.phase {
		case phasePubrecReceived:
			pubrels = append(pubrels, id)
		case phaseSent:
			publishes = append(publishes, rec)
		}
	}
	return pubrels, publishes
}

// handlePuback completes a QoS-1 outbound send (§4.3).
func (in *inflight) handlePuback(id uint16) {
	in.mu.Lock()
	rec, ok := in.outbound[id]
	if ok {
		delete(in.outbound, id)
	}
	in.mu.Unlock()
	if !ok {
		return
	}
	_ = in.persistence.Remove(keyS(id))
	in.freeID(id)
	in.releaseSlot()
	rec.token.complete()
}

// handlePubrec advances a QoS-2 outbound send to PUBREC_RECEIVED: the
// persisted record moves from s-<id> to sc-<id> and the PUBREL to
// retransmit is persisted under sb-<id>, then fired (§4.3).
func (in *inflight) handlePubrec(id uint16, version byte) {
	in.mu.Lock()
	rec, ok := in.outbound[id]
	if ok {
		rec.phase = phasePubrecReceived
	}
	in.mu.Unlock()
	if !ok {
		return
	}

	if wire, found := in.persistence.Get(keyS(id)); found {
		_ = in.persistence.Put(keySC(id), wire)
	}
	_ = in.persistence.Remove(keyS(id))

	pubrel := &packet.PUBREL{FixedHeader: &packet.FixedHeader{Version: version, Kind: PUBREL, QoS: 1}, PacketID: id}
	buf := packet.GetBuffer()
	if err := pubrel.Pack(buf); err == nil {
		wire := append([]byte(nil), buf.Bytes()...)
		_ = in.persistence.Put(keySB(id), wire)
	}
	packet.PutBuffer(buf)

	in.urgent <- &job{pkt: pubrel}
}

// handlePubcomp completes a QoS-2 outbound send (§4.3).
func (in *inflight) handlePubcomp(id uint16) {
	in.mu.Lock()
	rec, ok := in.outbound[id]
	if ok {
		delete(in.outbound, id)
	}
	in.mu.Unlock()
	if !ok {
		return
	}
	_ = in.persistence.Remove(keySC(id))
	_ = in.persistence.Remove(keySB(id))
	in.freeID(id)
	in.releaseSlot()
	rec.token.complete()
}

// inboundResult tells the caller which ack, if any, to send for an
// inbound PUBLISH and whether it should be (re)dispatched.
type inboundResult struct {
	dispatch bool
	ackKind  byte // 0 = none, PUBACK, or PUBREC
}

// handleInboundPublish implements §4.3 "Inbound PUBLISH".
func (in *inflight) handleInboundPublish(pub *packet.PUBLISH) inboundResult {
	switch pub.QoS {
	case 0:
		return inboundResult{dispatch: true}
	case 1:
		return inboundResult{dispatch: true, ackKind: PUBACK}
	case 2:
		in.mu.Lock()
		_, seen := in.inbound[pub.PacketID]
		if !seen {
			in.inbound[pub.PacketID] = struct{}{}
		}
		in.mu.Unlock()
		if seen {
			return inboundResult{dispatch: false, ackKind: PUBREC}
		}
		wireBuf := packet.GetBuffer()
		_ = pub.Pack(wireBuf)
		_ = in.persistence.Put(keyR(pub.PacketID), append([]byte(nil), wireBuf.Bytes()...))
		packet.PutBuffer(wireBuf)
		return inboundResult{dispatch: true, ackKind: PUBREC}
	}
	return inboundResult{}
}

// handlePubrel completes the inbound QoS-2 cycle: forget the pending
// record and let the caller send PUBCOMP.
func (in *inflight) handlePubrel(id uint16) {
	in.mu.Lock()
	delete(in.inbound, id)
	in.mu.Unlock()
	_ = in.persistence.Remove(keyR(id))
}

// outboundCount reports the number currently occupying the in-flight
// window, for tests, metrics, and diagnostics.
func (in *inflight) outboundCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.outbound)
}

// restore rebuilds outbound/inbound pending state, and the message-id
// bitmap, from records a previous process persisted before it exited or
// crashed (§4.3, §8's "crash and restart replays the same in-flight
// set" property). Under a clean session there is nothing to resume, so
// stale records are discarded instead of loaded.
func (in *inflight) restore(version byte, cleanSession bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	for _, key := range in.persistence.Keys() {
		var id uint16
		switch {
		case scanKey(key, "s-", &id):
			if cleanSession {
				_ = in.persistence.Remove(key)
				continue
			}
			in.restoreOutboundLocked(key, id, version, phaseSent)
		case scanKey(key, "sc-", &id):
			if cleanSession {
				_ = in.persistence.Remove(key)
				continue
			}
			in.restoreOutboundLocked(key, id, version, phasePubrecReceived)
		case scanKey(key, "sb-", &id):
			if cleanSession {
				_ = in.persistence.Remove(key)
			}
			// sb-<id> is only the retransmit copy; sc-<id> owns the record.
		case scanKey(key, "r-", &id):
			if cleanSession {
				_ = in.persistence.Remove(key)
				continue
			}
			in.setID(id)
			in.inbound[id] = struct{}{}
		}
	}
}

// restoreOutboundLocked loads one persisted PUBLISH record into the
// outbound table at the given phase. Called with in.mu held.
func (in *inflight) restoreOutboundLocked(key string, id uint16, version byte, phase outboundPhase) {
	wire, ok := in.persistence.Get(key)
	if !ok {
		return
	}
	pub, err := unpackPersistedPublish(version, wire)
	if err != nil {
		return
	}
	in.setID(id)
	in.outbound[id] = &outboundRecord{
		id:  id,
		qos: pub.QoS,
		message: &Message{
			Topic:   pub.Message.TopicName,
			Payload: pub.Message.Content,
			QoS:     pub.QoS,
			Retain:  pub.Retain != 0,
		},
		token: newToken(),
		phase: phase,
	}
	in.sentCount++
}

func unpackPersistedPublish(version byte, wire []byte) (*packet.PUBLISH, error) {
	pkt, err := packet.Unpack(version, bytes.NewReader(wire))
	if err != nil {
		return nil, err
	}
	pub, ok := pkt.(*packet.PUBLISH)
	if !ok {
		return nil, fmt.Errorf("persisted record is not a PUBLISH: %T", pkt)
	}
	return pub, nil
}

func scanKey(key, prefix string, id *uint16) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	n, err := strconv.ParseUint(key[len(prefix):], 10, 16)
	if err != nil {
		return false
	}
	*id = uint16(n)
	return true
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
