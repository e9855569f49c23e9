package packet

import (
	"bytes"
	"io"
)

// PINGREQ is sent by the client to keep the connection alive. Section 3.12
// PINGREQ - PING request. The server must respond with PINGRESP.
type PINGREQ struct {
	*FixedHeader
}

func (pkt *PINGREQ) Kind() byte { return 0xC }

func (pkt *PINGREQ) Pack(w io.Writer) error {
	return pkt.FixedHeader.Pack(w)
}

func (pkt *PINGREQ) Unpack(_ *bytes.Buffer) error {
	return nil
}
