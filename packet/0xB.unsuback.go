package packet

import (
	"bytes"
	"encoding/binary"
	"io"
)

// UNSUBACK confirms an UNSUBSCRIBE. Section 3.11 UNSUBACK - Unsubscribe acknowledgement.
type UNSUBACK struct {
	*FixedHeader
	PacketID uint16
}

func (pkt *UNSUBACK) Kind() byte { return 0xB }

func (pkt *UNSUBACK) Pack(w io.Writer) error {
	pkt.RemainingLength = 2
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := w.Write(i2b(pkt.PacketID))
	return err
}

func (pkt *UNSUBACK) Unpack(buf *bytes.Buffer) error {
	if pkt.RemainingLength != 2 {
		return ErrMalformedPacket
	}
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))
	return nil
}
