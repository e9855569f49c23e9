package mqtt

import (
	"github.com/gomqtt-io/client/topic"
)

// DefaultHandler receives messages that arrived on a topic no subscribed
// filter matched, but the broker delivered anyway (§4.8's global default
// callback).
type DefaultHandler func(msg *Message)

// dispatcher owns the filter→handler table and routes inbound PUBLISH
// messages to the handlers of every filter that matches, per the MQTT
// wildcard grammar. SUBSCRIBE updates the table optimistically before the
// SUBACK is known; a failed grant is rolled back per filter.
type dispatcher struct {
	trie    *topic.Trie
	fallback DefaultHandler
}

func newDispatcher() *dispatcher {
	return &dispatcher{trie: topic.NewTrie()}
}

func (d *dispatcher) setDefaultHandler(h DefaultHandler) {
	d.fallback = h
}

// subscribeOptimistic registers filter/qos/handler immediately, before
// the SUBACK confirming the grant has arrived.
func (d *dispatcher) subscribeOptimistic(filter string, maxQoS uint8, handler Handler) {
	d.trie.Subscribe(filter, maxQoS, wrap(handler))
}

// rollback undoes an optimistic subscribe when the broker's SUBACK
// reports failure (0x80) for that filter. Per §9's open question, a
// failed grant only removes that filter's own handler; it does not
// restore whatever handler (if any) previously occupied the slot.
func (d *dispatcher) rollback(filter string) {
	d.trie.Unsubscribe(filter)
}

// unsubscribe removes filter's handler immediately, before the
// UNSUBSCRIBE packet is sent.
func (d *dispatcher) unsubscribe(filter string) {
	d.trie.Unsubscribe(filter)
}

// dispatch delivers msg to every subscribed filter matching its topic,
// or to the default handler if no filter matches.
func (d *dispatcher) dispatch(msg *Message) {
	matches := d.trie.Find(msg.Topic)
	if len(matches) == 0 {
		if d.fallback != nil {
			d.fallback(msg)
		}
		return
	}
	for _, m := range matches {
		if m.Handler != nil {
			m.Handler(msg.Topic, msg.Payload)
		} else if d.fallback != nil {
			d.fallback(msg)
		}
	}
}

// Handler receives the payload of a message matching one subscribed
// filter. It must not assume any particular goroutine.
type Handler func(topicName string, payload []byte)

func wrap(h Handler) topic.Handler {
	if h == nil {
		return nil
	}
	return topic.Handler(h)
}
