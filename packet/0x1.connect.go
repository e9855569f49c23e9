package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang-io/requests"
)

// NAME is the fixed MQTT protocol name field: 0x00 0x04 'M' 'Q' 'T' 'T'.
var NAME = []byte{0x00, 0x04, 'M', 'Q', 'T', 'T'}

// Will describes the message a server must publish on the client's behalf
// if the network connection is closed without a preceding DISCONNECT.
type Will struct {
	Topic   string
	Message []byte
	QoS     uint8
	Retain  bool
}

// CONNECT is sent by a client to open a session with a server.
// Section 3.1 CONNECT - Client requests a connection to a Server.
type CONNECT struct {
	*FixedHeader

	// ConnectFlags reflects the flags byte as parsed by Unpack. It is not
	// consulted by Pack, which derives the flags byte from the fields below.
	ConnectFlags ConnectFlags

	KeepAlive uint16

	// ClientID identifies the session. An empty ClientID on the wire is
	// replaced with a generated one, matching a zero-length client
	// identifier request per MQTT-3.1.3-6.
	ClientID string

	// CleanSession requests that no prior session state be resumed.
	CleanSession bool

	// Will, if non-nil, is published by the server if this connection
	// terminates unexpectedly.
	Will *Will

	Username string
	Password string
}

func (pkt *CONNECT) Kind() byte { return 0x1 }

func (pkt *CONNECT) String() string { return "[0x1]CONNECT" }

func (pkt *CONNECT) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(NAME)
	buf.WriteByte(pkt.Version)

	uf := s2i(pkt.Username)
	pf := s2i(pkt.Password)
	wr, wq, wf := uint8(0), uint8(0), uint8(0)
	if pkt.Will != nil {
		wf = 1
		wq = pkt.Will.QoS
		if pkt.Will.Retain {
			wr = 1
		}
	}
	cs := uint8(0)
	if pkt.CleanSession {
		cs = 1
	}
	buf.WriteByte(uf<<7 | pf<<6 | wr<<5 | wq<<3 | wf<<2 | cs<<1)

	buf.Write(i2b(pkt.KeepAlive))
	buf.Write(s2b(pkt.ClientID))

	if pkt.Will != nil {
		buf.Write(s2b(pkt.Will.Topic))
		buf.Write(s2b(pkt.Will.Message))
	}
	if pkt.Username != "" {
		buf.Write(s2b(pkt.Username))
	}
	if pkt.Password != "" {
		buf.Write(s2b(pkt.Password))
	}

	pkt.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *CONNECT) Unpack(buf *bytes.Buffer) error {
	name := buf.Next(6)
	if !bytes.Equal(name, NAME) {
		return fmt.Errorf("%w: %v", ErrMalformedProtocolName, name)
	}

	pkt.Version, pkt.ConnectFlags = buf.Next(1)[0], ConnectFlags(buf.Next(1)[0])

	// The reserved flag bit must be zero [MQTT-3.1.2-3].
	if pkt.ConnectFlags.Reserved() != 0 {
		return ErrMalformedPacket
	}
	if pkt.ConnectFlags.WillQoS() > 2 {
		return ErrProtocolViolationQosOutOfRange
	}

	pkt.KeepAlive = binary.BigEndian.Uint16(buf.Next(2))

	switch pkt.Version {
	case VERSION311:
	case VERSION310:
		return ErrUnsupportedProtocolVersion
	default:
		return ErrMalformedProtocolVersion
	}

	pkt.ClientID = decodeUTF8[string](buf)
	if pkt.ClientID == "" {
		pkt.ClientID = requests.GenId()
	}

	pkt.CleanSession = pkt.ConnectFlags.CleanSession()

	if pkt.ConnectFlags.WillFlag() {
		topic := decodeUTF8[string](buf)
		message := decodeUTF8[[]byte](buf)
		pkt.Will = &Will{
			Topic:   topic,
			Message: message,
			QoS:     pkt.ConnectFlags.WillQoS(),
			Retain:  pkt.ConnectFlags.WillRetain(),
		}
	}

	if pkt.ConnectFlags.UserNameFlag() {
		pkt.Username = decodeUTF8[string](buf)
	} else if pkt.ConnectFlags.PasswordFlag() {
		// Password flag without a username flag is malformed [MQTT-3.1.2-22].
		return ErrMalformedPassword
	}
	if pkt.ConnectFlags.PasswordFlag() {
		pkt.Password = decodeUTF8[string](buf)
	}
	return nil
}

// ConnectFlags is the single flags byte in the CONNECT variable header.
// Section 3.1.2.2 Connect Flags.
type ConnectFlags uint8

func (f ConnectFlags) Reserved() uint8 {
	return uint8(f) & 0x01
}

func (f ConnectFlags) CleanSession() bool {
	return (uint8(f) & 0x02) == 0x02
}

func (f ConnectFlags) WillFlag() bool {
	return (uint8(f) & 0x04) == 0x04
}

func (f ConnectFlags) WillQoS() uint8 {
	return (uint8(f) & 0x18) >> 3
}

func (f ConnectFlags) WillRetain() bool {
	return (uint8(f) & 0x20) == 0x20
}

func (f ConnectFlags) UserNameFlag() bool {
	return (uint8(f) & 0x80) == 0x80
}

func (f ConnectFlags) PasswordFlag() bool {
	return (uint8(f) & 0x40) == 0x40
}
