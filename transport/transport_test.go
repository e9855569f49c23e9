package transport

import (
	"context"
	"net/url"
	"testing"
)

func TestWithDefaultPortUsesExplicitPortWhenPresent(t *testing.T) {
	u, _ := url.Parse("tcp://broker.example.com:1900")
	if got := withDefaultPort(u); got != "broker.example.com:1900" {
		t.Errorf("withDefaultPort() = %q, want broker.example.com:1900", got)
	}
}

func TestWithDefaultPortPlaintext(t *testing.T) {
	u, _ := url.Parse("tcp://broker.example.com")
	if got := withDefaultPort(u); got != "broker.example.com:1883" {
		t.Errorf("withDefaultPort() = %q, want broker.example.com:1883", got)
	}
}

func TestWithDefaultPortTLS(t *testing.T) {
	for _, scheme := range []string{"ssl", "tls", "mqtts", "wss"} {
		u, _ := url.Parse(scheme + "://broker.example.com")
		if got := withDefaultPort(u); got != "broker.example.com:8883" {
			t.Errorf("withDefaultPort(%s) = %q, want broker.example.com:8883", scheme, got)
		}
	}
}

func TestDialRejectsLocalScheme(t *testing.T) {
	_, err := Dial(context.Background(), "local://anything", nil)
	if err == nil {
		t.Error("Dial() should reject the local:// scheme")
	}
}

func TestDialRejectsUnknownScheme(t *testing.T) {
	_, err := Dial(context.Background(), "carrier-pigeon://broker", nil)
	if err == nil {
		t.Error("Dial() should reject an unrecognized scheme")
	}
}

func TestDialRejectsMalformedURI(t *testing.T) {
	_, err := Dial(context.Background(), "://not a uri", nil)
	if err == nil {
		t.Error("Dial() should reject a malformed URI")
	}
}
