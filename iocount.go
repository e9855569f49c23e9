package mqtt

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// countingWriter tallies bytes written through it into a Prometheus
// counter. packet.Pack takes a plain io.Writer and reports no byte count
// of its own, so wrapping the connection is the only hook available.
type countingWriter struct {
	w   io.Writer
	ctr prometheus.Counter
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.ctr.Add(float64(n))
	return n, err
}

// countingReader is the receive-side counterpart of countingWriter.
type countingReader struct {
	r   io.Reader
	ctr prometheus.Counter
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.ctr.Add(float64(n))
	return n, err
}
