package packet

import (
	"bytes"
	"fmt"
	"io"
)

// CONNACK acknowledges a CONNECT. Section 3.2 CONNACK - Acknowledge connection request.
type CONNACK struct {
	*FixedHeader

	// SessionPresent is only meaningful when CleanSession was 0 on CONNECT.
	SessionPresent uint8

	// ConnectReturnCode is one of the codes in errors.go (0x00-0x05).
	// A non-zero code means the server has already closed the connection.
	ConnectReturnCode ReasonCode
}

func (pkt *CONNACK) Kind() byte { return 0x2 }

func (pkt *CONNACK) String() string {
	return fmt.Sprintf("[0x2]ConnectReturnCode=%d", pkt.ConnectReturnCode.Code)
}

func (pkt *CONNACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte(pkt.SessionPresent)
	buf.WriteByte(pkt.ConnectReturnCode.Code)

	pkt.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *CONNACK) Unpack(buf *bytes.Buffer) error {
	if pkt.RemainingLength != 2 {
		return ErrMalformedPacket
	}
	pkt.SessionPresent = buf.Next(1)[0]
	pkt.ConnectReturnCode = ReasonCode{Code: buf.Next(1)[0]}
	return nil
}
