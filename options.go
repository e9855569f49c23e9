package mqtt

import (
	"crypto/tls"
	"time"

	"github.com/gomqtt-io/client/packet"
	"github.com/golang-io/requests"
)

// Will describes the message a broker should publish on this client's
// behalf if the connection drops without a preceding DISCONNECT.
type Will struct {
	Topic   string
	Payload []byte
	QoS     uint8
	Retain  bool
}

// BufferOptions configures the offline publish buffer used while the
// client is not connected. See §4.7.
type BufferOptions struct {
	Enabled            bool
	BufferSize         int
	PersistBuffer      bool
	DeleteOldestOnFull bool
}

// Options holds every setting the core reads. It is built by New from a
// list of Option funcs and never mutated afterward.
type Options struct {
	ServerURIs []string
	ClientID   string
	Version    byte

	CleanSession       bool
	KeepAliveInterval  time.Duration
	ConnectionTimeout  time.Duration
	AutomaticReconnect bool
	MaxReconnectDelay  time.Duration
	MaxInflight        int

	Will *Will

	Username string
	Password string

	BufferOpts BufferOptions

	Persistence Persistence

	TLSConfig *tls.Config
}

// Option mutates an Options during construction.
type Option func(*Options)

func newOptions(opts ...Option) Options {
	options := Options{
		ServerURIs:        []string{"tcp://127.0.0.1:1883"},
		ClientID:          "mqtt-" + requests.GenId(),
		Version:           packet.VERSION311,
		CleanSession:      true,
		KeepAliveInterval: 60 * time.Second,
		ConnectionTimeout: 30 * time.Second,
		MaxReconnectDelay: 128 * time.Second,
		MaxInflight:       10,
		Persistence:       NewMemoryPersistence(),
	}
	for _, o := range opts {
		o(&options)
	}
	return options
}

// ServerURIs sets the ordered list of candidate broker endpoints tried in
// sequence by the handshake coordinator.
func ServerURIs(uris ...string) Option {
	return func(o *Options) { o.ServerURIs = uris }
}

func ClientID(id string) Option {
	return func(o *Options) { o.ClientID = id }
}

func CleanSession(clean bool) Option {
	return func(o *Options) { o.CleanSession = clean }
}

func KeepAliveInterval(d time.Duration) Option {
	return func(o *Options) { o.KeepAliveInterval = d }
}

func ConnectionTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectionTimeout = d }
}

func AutomaticReconnect(enabled bool) Option {
	return func(o *Options) { o.AutomaticReconnect = enabled }
}

func MaxReconnectDelay(d time.Duration) Option {
	return func(o *Options) { o.MaxReconnectDelay = d }
}

func MaxInflight(n int) Option {
	return func(o *Options) { o.MaxInflight = n }
}

func WillMessage(topic string, payload []byte, qos uint8, retain bool) Option {
	return func(o *Options) { o.Will = &Will{Topic: topic, Payload: payload, QoS: qos, Retain: retain} }
}

func Credentials(username, password string) Option {
	return func(o *Options) { o.Username, o.Password = username, password }
}

func BufferOpts(buf BufferOptions) Option {
	return func(o *Options) { o.BufferOpts = buf }
}

// WithPersistence overrides the default in-memory persistence provider.
func WithPersistence(p Persistence) Option {
	return func(o *Options) { o.Persistence = p }
}

// WithTLSConfig sets the TLS config used for ssl/tls/mqtts/wss server URIs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) { o.TLSConfig = cfg }
}
