package packet

import (
	"bytes"
	"encoding/binary"
	"io"
)

// SUBACK reports the outcome of a SUBSCRIBE request, one code per filter, in
// the same order as the request. Section 3.9 SUBACK - Subscribe acknowledgement.
type SUBACK struct {
	*FixedHeader

	PacketID uint16

	// ReasonCode holds one entry per requested filter: CodeGrantedQoS0/1/2
	// on success, ErrSubscribeFail (0x80) if the server rejected that filter.
	ReasonCode []ReasonCode
}

func (pkt *SUBACK) Kind() byte { return 0x9 }

func (pkt *SUBACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if len(pkt.ReasonCode) == 0 {
		return ErrMalformedReasonCode
	}
	buf.Write(i2b(pkt.PacketID))
	for _, reason := range pkt.ReasonCode {
		buf.WriteByte(reason.Code)
	}
	pkt.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *SUBACK) Unpack(buf *bytes.Buffer) error {
	pkt.PacketID = binary.BigEndian.Uint16(buf.Next(2))

	for buf.Len() != 0 {
		code := buf.Next(1)[0]
		// Valid v3.1.1 SUBACK codes are 0x00-0x02 (granted QoS) and 0x80
		// (failure); 0x80 is a legitimate per-filter outcome, not malformed.
		if code != 0x00 && code != 0x01 && code != 0x02 && code != 0x80 {
			return ErrMalformedReasonCode
		}
		pkt.ReasonCode = append(pkt.ReasonCode, ReasonCode{Code: code})
	}
	if len(pkt.ReasonCode) == 0 {
		return ErrMalformedReasonCode
	}
	return nil
}
