package mqtt

import (
	"fmt"
	"strings"
)

// Message is one application message, either being published or having
// arrived from a subscription. See §3 DATA MODEL: topic must be non-empty
// UTF-8 with no wildcards for an outbound publish.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       uint8
	Retain    bool
	Duplicate bool
}

// validatePublishTopic rejects the wildcard and empty topic names
// PUBLISH.Unpack also rejects on the wire (packet/0x3.publish.go), so a
// caller gets the same verdict before a round trip to the broker.
func validatePublishTopic(name string) error {
	if name == "" || strings.ContainsAny(name, "+# ") {
		return newError(InvalidTopic, fmt.Errorf("invalid publish topic %q", name))
	}
	return nil
}
