package packet

import (
	"bytes"
	"encoding/binary"
	"io"
)

// PUBREL is step two of QoS 2 delivery.
// Section 3.6 PUBREL - Publish release (QoS 2 publish received, part 2).
// Flags on the fixed header must be DUP=0, QoS=1, RETAIN=0 [MQTT-3.6.1-1].
type PUBREL struct {
	*FixedHeader
	PacketID uint16
}

func (pkt *PUBREL) Kind() byte { return 0x6 }

func (pkt *PUBREL) Pack(w io.Writer) error {
	pkt.RemainingLength = 2
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := w.Write(i2b(pkt.PacketID))
	return err
}

func (pkt *PUBREL) Unpack(buf *bytes.Buffer) error {
	if pkt.RemainingLength != 2 {
		return ErrMalformedPacket
	}
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))
	return nil
}
