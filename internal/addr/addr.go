// Package addr implements IPv4 address validation and the
// address/string conversions shared by the server and the client.
package addr

import (
	"strconv"
	"strings"

	"github.com/nodegraph/wiresock/internal/wsockerr"
)

// Address is a validated IPv4 endpoint.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return ToString(a)
}

// ValidateIPv4 checks that host is four dotted-decimal octets in 0..255,
// and, when port is non-zero, that port is in 1..65535.
func ValidateIPv4(host string, port int) error {
	octets := strings.Split(host, ".")
	if len(octets) != 4 {
		return wsockerr.Newf(wsockerr.Protocol, "invalid IPv4 address %q: want four dotted octets", host)
	}
	for _, o := range octets {
		if o == "" {
			return wsockerr.Newf(wsockerr.Protocol, "invalid IPv4 address %q: empty octet", host)
		}
		n, err := strconv.Atoi(o)
		if err != nil {
			return wsockerr.Wrapf(wsockerr.Protocol, err, "invalid IPv4 address %q", host)
		}
		if n < 0 || n > 255 {
			return wsockerr.Newf(wsockerr.Protocol, "invalid IPv4 address %q: octet %d out of range", host, n)
		}
	}
	if port != 0 && (port < 1 || port > 65535) {
		return wsockerr.Newf(wsockerr.Protocol, "invalid port %d: want 1..65535", port)
	}
	return nil
}

// New validates host/port and returns the resulting Address.
func New(host string, port int) (Address, error) {
	if err := ValidateIPv4(host, port); err != nil {
		return Address{}, err
	}
	return Address{Host: host, Port: port}, nil
}

// ToString renders an Address as "host:port".
func ToString(a Address) string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// FromString parses "host:port" into an Address, validating both parts.
func FromString(s string) (Address, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return Address{}, wsockerr.Newf(wsockerr.Protocol, "address %q missing port", s)
	}
	host, portStr := s[:idx], s[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, wsockerr.Wrapf(wsockerr.Protocol, err, "address %q has non-numeric port", s)
	}
	return New(host, port)
}

// ParseIdentifier classifies value as either an "ip:port" address (the
// second return is true) or a bare name (false). Used to resolve both
// $GETCLT$ identifiers and the public GetClient lookup from one rule.
func ParseIdentifier(value string) (Address, bool) {
	a, err := FromString(value)
	if err != nil {
		return Address{}, false
	}
	return a, true
}
