package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// PUBLISH carries an application message. Section 3.3 PUBLISH - Publish message.
// DUP, QoS and RETAIN live on the embedded FixedHeader.
type PUBLISH struct {
	*FixedHeader

	// PacketID is present only when QoS > 0 [MQTT-2.3.1-5].
	PacketID uint16

	Message *Message
}

func (pkt *PUBLISH) Kind() byte { return 0x3 }

func (pkt *PUBLISH) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(s2b(pkt.Message.TopicName))
	if pkt.QoS != 0 {
		buf.Write(i2b(pkt.PacketID))
	}
	buf.Write(pkt.Message.Content)

	pkt.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *PUBLISH) Unpack(buf *bytes.Buffer) error {
	topicLength := int(binary.BigEndian.Uint16(buf.Next(2)))
	pkt.Message = &Message{TopicName: string(buf.Next(topicLength))}

	// A topic name must not contain wildcards [MQTT-3.3.2-2].
	if pkt.Message.TopicName == "" || strings.ContainsAny(pkt.Message.TopicName, "+# ") {
		return fmt.Errorf("%w: %q", ErrTopicNameInvalid, pkt.Message.TopicName)
	}
	if pkt.QoS != 0 {
		pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))
	}
	pkt.Message.Content = buf.Bytes()
	return nil
}

// Message is a topic/payload pair, the unit exchanged over PUBLISH.
type Message struct {
	TopicName string
	Content   []byte
}

func (m *Message) String() string {
	return fmt.Sprintf("%s # %s", m.TopicName, m.Content)
}
