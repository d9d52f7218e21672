// Package factory is the Session construction seam: the Validation Runner
// asks it for a fresh Session per compliance test, and a test double can
// substitute a scripted in-process Session in place of a real dial.
//
// This mirrors chasquid's own courier.Courier interface / courier.SMTP
// struct split: production code depends on an interface, tests swap in a
// fake that never touches the network.
package factory

import (
	"time"

	"librarymarket.com/go/msadiag/internal/session"
)

// DefaultConnectTimeout/DefaultIOTimeout are the defaults Sessions built by a Factory use,
// matching SPEC_FULL.md's connect (3.0s) / read-write (15.0s) defaults.
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultIOTimeout      = 15 * time.Second
)

// Factory produces fresh, connected Sessions.
type Factory interface {
	// New dials endpoint and returns a connected Session, or propagates the
	// Connect error.
	New(endpoint session.Endpoint) (*session.Session, error)
}

// Dialer is the production Factory: each call opens a brand-new TCP/TLS
// connection via session.Connect, using the configured timeouts.
type Dialer struct {
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
}

// NewDialer returns a Dialer with SPEC_FULL.md's default timeouts.
func NewDialer() *Dialer {
	return &Dialer{ConnectTimeout: DefaultConnectTimeout, IOTimeout: DefaultIOTimeout}
}

func (d *Dialer) New(endpoint session.Endpoint) (*session.Session, error) {
	s := session.New(endpoint)
	if err := s.Connect(d.ConnectTimeout, d.IOTimeout); err != nil {
		return nil, err
	}
	return s, nil
}

// Func adapts a plain function to the Factory interface, the way
// http.HandlerFunc adapts a function to http.Handler. Tests use this to
// hand the Validation Runner a sequence of scripted in-process Sessions
// without a real Dialer.
type Func func(endpoint session.Endpoint) (*session.Session, error)

func (f Func) New(endpoint session.Endpoint) (*session.Session, error) { return f(endpoint) }

