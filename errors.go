package mqtt

import "fmt"

// Code is a stable numeric error identity surfaced to callers through a
// Token or a synchronous API return, independent of any wire-level
// packet.ReasonCode.
type Code int

const (
	ClientConnected Code = iota + 1
	ClientDisconnecting
	ClientNotConnected
	ClientTimeout
	ConnectInProgress
	ClientClosed
	NoMessageIDsAvailable
	PersistenceFailure
	BrokerUnavailable
	SubscribeFailed
	WriteTimeout
	DisconnectedBufferFull
	InvalidTopic
	ProtocolError
)

var codeName = map[Code]string{
	ClientConnected:         "CLIENT_CONNECTED",
	ClientDisconnecting:     "CLIENT_DISCONNECTING",
	ClientNotConnected:      "CLIENT_NOT_CONNECTED",
	ClientTimeout:           "CLIENT_TIMEOUT",
	ConnectInProgress:       "CONNECT_IN_PROGRESS",
	ClientClosed:            "CLIENT_CLOSED",
	NoMessageIDsAvailable:   "NO_MESSAGE_IDS_AVAILABLE",
	PersistenceFailure:      "PERSISTENCE_FAILURE",
	BrokerUnavailable:       "BROKER_UNAVAILABLE",
	SubscribeFailed:         "SUBSCRIBE_FAILED",
	WriteTimeout:            "WRITE_TIMEOUT",
	DisconnectedBufferFull:  "DISCONNECTED_BUFFER_FULL",
	InvalidTopic:            "INVALID_TOPIC",
	ProtocolError:           "PROTOCOL_ERROR",
}

func (c Code) String() string {
	if name, ok := codeName[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the typed error carried by a failed Token, pairing a stable
// Code with an optional underlying cause.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}
