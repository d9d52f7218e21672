package session

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/idna"
	"librarymarket.com/go/msadiag/internal/diagerr"
	"librarymarket.com/go/msadiag/internal/tlspolicy"
)

// ConnectionType selects how (and whether) a Session negotiates TLS.
type ConnectionType int

const (
	// Auto upgrades via STARTTLS when the server advertises it, otherwise
	// stays in plaintext.
	Auto ConnectionType = iota
	// PlainText never attempts TLS.
	PlainText
	// STARTTLS requires the in-band upgrade to succeed.
	STARTTLS
	// TLS dials directly into a TLS handshake (implicit TLS, e.g. port 465).
	TLS
)

func (c ConnectionType) String() string {
	switch c {
	case Auto:
		return "auto"
	case PlainText:
		return "plain"
	case STARTTLS:
		return "starttls"
	case TLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Endpoint names the server a Session connects to. Host is converted to
// its ASCII (punycode) form at construction time, the same normalization
// chasquid's cmd/smtp-check and internal/courier/smtp.go apply to MX names
// before using them as both the dial target and TLS ServerName.
type Endpoint struct {
	Host string
	Port int
	Type ConnectionType
	TLS  tlspolicy.Policy
}

// NewEndpoint validates host and port and returns an Endpoint, or an
// InvalidArgument error.
func NewEndpoint(host string, port int, ct ConnectionType, policy tlspolicy.Policy) (Endpoint, error) {
	if port < 1 || port > 65535 {
		return Endpoint{}, &diagerr.InvalidArgument{Reason: fmt.Sprintf("port %d out of range", port)}
	}

	ascii, err := toASCII(host)
	if err != nil {
		return Endpoint{}, &diagerr.InvalidArgument{Reason: fmt.Sprintf("invalid host %q: %v", host, err)}
	}

	if net.ParseIP(ascii) == nil {
		if _, err := net.LookupHost(ascii); err != nil {
			return Endpoint{}, &diagerr.InvalidArgument{Reason: fmt.Sprintf("host %q does not resolve: %v", host, err)}
		}
	}

	return Endpoint{Host: ascii, Port: port, Type: ct, TLS: policy}, nil
}

// Addr renders the endpoint as a net.Dial-compatible "host:port" string.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// toASCII accepts either a literal IP address (returned unchanged) or an
// internationalized hostname, converted via golang.org/x/net/idna, and
// rejects anything that is neither.
func toASCII(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.ToASCII(host)
	if err != nil {
		return "", err
	}
	if ascii == "" {
		return "", fmt.Errorf("empty host")
	}
	return ascii, nil
}
