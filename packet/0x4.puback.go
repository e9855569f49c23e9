package packet

import (
	"bytes"
	"encoding/binary"
	"io"
)

// PUBACK completes QoS 1 delivery. Section 3.4 PUBACK - Publish acknowledgement.
type PUBACK struct {
	*FixedHeader
	PacketID uint16
}

func (pkt *PUBACK) Kind() byte { return 0x4 }

func (pkt *PUBACK) Pack(w io.Writer) error {
	pkt.RemainingLength = 2
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := w.Write(i2b(pkt.PacketID))
	return err
}

func (pkt *PUBACK) Unpack(buf *bytes.Buffer) error {
	if pkt.RemainingLength != 2 {
		return ErrMalformedPacket
	}
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))
	return nil
}
