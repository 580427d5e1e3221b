// Package network provides the TCP transport for the gossip overlay:
// endpoints, and sessions that frame every payload with a 16 bit
// big-endian length prefix.
package network

import (
	"fmt"
	"net"
	"strconv"

	"github.com/tidechain/tide/foundation/codec"
)

// Endpoint is a dialable host and port.
type Endpoint struct {
	Host string
	Port uint16
}

// ParseEndpoint splits a "host:port" string.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint %q: %w", s, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint port %q: %w", s, err)
	}

	return Endpoint{Host: host, Port: uint16(port)}, nil
}

// String implements the fmt.Stringer interface.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// IsZero reports whether the endpoint was never set.
func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// WithPort returns the same host with a different port. Used when a
// peer advertises the port its own server listens on.
func (e Endpoint) WithPort(port uint16) Endpoint {
	return Endpoint{Host: e.Host, Port: port}
}

// Encode writes the endpoint.
func (e Endpoint) Encode(w *codec.Writer) {
	w.WriteString(e.Host)
	w.WriteUint16(e.Port)
}

// DecodeEndpoint reads an endpoint.
func DecodeEndpoint(r *codec.Reader) (Endpoint, error) {
	host, err := r.ReadString()
	if err != nil {
		return Endpoint{}, err
	}
	port, err := r.ReadUint16()
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Host: host, Port: port}, nil
}
