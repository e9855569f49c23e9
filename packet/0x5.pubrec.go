package packet

import (
	"bytes"
	"encoding/binary"
	"io"
)

// PUBREC is the first acknowledgement of QoS 2 delivery.
// Section 3.5 PUBREC - Publish received (QoS 2 publish received, part 1).
type PUBREC struct {
	*FixedHeader
	PacketID uint16
}

func (pkt *PUBREC) Kind() byte { return 0x5 }

func (pkt *PUBREC) Pack(w io.Writer) error {
	pkt.RemainingLength = 2
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := w.Write(i2b(pkt.PacketID))
	return err
}

func (pkt *PUBREC) Unpack(buf *bytes.Buffer) error {
	if pkt.RemainingLength != 2 {
		return ErrMalformedPacket
	}
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))
	return nil
}
