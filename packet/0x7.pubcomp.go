package packet

import (
	"bytes"
	"encoding/binary"
	"io"
)

// PUBCOMP is the final acknowledgement of QoS 2 delivery.
// Section 3.7 PUBCOMP - Publish complete (QoS 2 publish received, part 3).
type PUBCOMP struct {
	*FixedHeader
	PacketID uint16
}

func (pkt *PUBCOMP) Kind() byte { return 0x7 }

func (pkt *PUBCOMP) Pack(w io.Writer) error {
	pkt.RemainingLength = 2
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := w.Write(i2b(pkt.PacketID))
	return err
}

func (pkt *PUBCOMP) Unpack(buf *bytes.Buffer) error {
	if pkt.RemainingLength != 2 {
		return ErrMalformedPacket
	}
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))
	return nil
}
