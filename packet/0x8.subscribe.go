package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SUBSCRIBE requests subscriptions to one or more topic filters.
// Section 3.8 SUBSCRIBE - Subscribe to topics.
// Flags on the fixed header must be DUP=0, QoS=1, RETAIN=0 [MQTT-3.8.1-1].
type SUBSCRIBE struct {
	*FixedHeader

	PacketID uint16

	// Subscriptions must contain at least one entry [MQTT-3.8.3-3].
	Subscriptions []Subscription
}

func (pkt *SUBSCRIBE) Kind() byte { return 0x8 }

func (pkt *SUBSCRIBE) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))

	for _, subscription := range pkt.Subscriptions {
		if subscription.TopicFilter == "" {
			return ErrProtocolViolationNoTopic
		}
		buf.Write(s2b(subscription.TopicFilter))
		buf.WriteByte(subscription.MaximumQoS)
	}
	pkt.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *SUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))

	for buf.Len() != 0 {
		subscription := Subscription{TopicFilter: decodeUTF8[string](buf)}
		options := buf.Next(1)[0]
		subscription.MaximumQoS = options & 0b00000011
		if subscription.MaximumQoS > 0x02 {
			return ErrProtocolViolationQosOutOfRange
		}
		// bits 7-2 of the subscription options byte are reserved [MQTT-3.8.3-4].
		if options&0b11111100 != 0 {
			return ErrMalformedFlags
		}
		pkt.Subscriptions = append(pkt.Subscriptions, subscription)
	}
	if len(pkt.Subscriptions) == 0 {
		return ErrProtocolViolationNoTopic
	}
	return nil
}

// Subscription is one topic filter/QoS pair from a SUBSCRIBE payload, or a
// bare topic filter from an UNSUBSCRIBE payload.
type Subscription struct {
	TopicFilter string
	MaximumQoS  uint8
}

func (s *Subscription) String() string {
	return fmt.Sprintf("%s@%d", s.TopicFilter, s.MaximumQoS)
}
