package packet

import (
	"bytes"
	"encoding/binary"
	"io"
)

// UNSUBSCRIBE removes one or more subscriptions.
// Section 3.10 UNSUBSCRIBE - Unsubscribe from topics.
// Flags on the fixed header must be DUP=0, QoS=1, RETAIN=0.
type UNSUBSCRIBE struct {
	*FixedHeader

	PacketID uint16

	// Subscriptions carries the topic filters to remove; only TopicFilter
	// is meaningful here, MaximumQoS is unused on the wire.
	Subscriptions []Subscription
}

func (pkt *UNSUBSCRIBE) Kind() byte { return 0xA }

func (pkt *UNSUBSCRIBE) Pack(w io.Writer) error {
	if len(pkt.Subscriptions) == 0 {
		return ErrMalformedTopic
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))
	for _, subscription := range pkt.Subscriptions {
		buf.Write(s2b(subscription.TopicFilter))
	}
	pkt.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *UNSUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	if buf.Len() < 2 {
		return ErrMalformedPacketID
	}
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))

	for buf.Len() != 0 {
		pkt.Subscriptions = append(pkt.Subscriptions, Subscription{TopicFilter: decodeUTF8[string](buf)})
	}
	if len(pkt.Subscriptions) == 0 {
		return ErrMalformedTopic
	}
	return nil
}
