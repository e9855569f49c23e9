package packet

import (
	"bytes"
	"io"
)

// DISCONNECT is the last packet sent from client to server in a clean
// shutdown. Section 3.14 DISCONNECT - Disconnect notification. It carries
// no variable header or payload.
type DISCONNECT struct {
	*FixedHeader
}

func (pkt *DISCONNECT) Kind() byte { return 0xE }

func (pkt *DISCONNECT) Pack(w io.Writer) error {
	pkt.RemainingLength = 0
	return pkt.FixedHeader.Pack(w)
}

func (pkt *DISCONNECT) Unpack(_ *bytes.Buffer) error {
	if pkt.Dup != 0 || pkt.QoS != 0 || pkt.Retain != 0 {
		return ErrMalformedFlags
	}
	return nil
}
