package session

import (
	"testing"

	"librarymarket.com/go/msadiag/internal/diagerr"
	"librarymarket.com/go/msadiag/internal/tlspolicy"
)

func TestNewEndpointRejectsPortZero(t *testing.T) {
	_, err := NewEndpoint("127.0.0.1", 0, Auto, tlspolicy.Policy{})
	if _, ok := err.(*diagerr.InvalidArgument); !ok {
		t.Fatalf("err = %v (%T), want *diagerr.InvalidArgument", err, err)
	}
}

func TestNewEndpointRejectsPortTooLarge(t *testing.T) {
	_, err := NewEndpoint("127.0.0.1", 65536, Auto, tlspolicy.Policy{})
	if _, ok := err.(*diagerr.InvalidArgument); !ok {
		t.Fatalf("err = %v (%T), want *diagerr.InvalidArgument", err, err)
	}
}

func TestNewEndpointAcceptsIPLiteralWithoutLookup(t *testing.T) {
	ep, err := NewEndpoint("127.0.0.1", 25, STARTTLS, tlspolicy.Policy{})
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	if ep.Addr() != "127.0.0.1:25" {
		t.Errorf("Addr() = %q, want 127.0.0.1:25", ep.Addr())
	}
	if ep.Type != STARTTLS {
		t.Errorf("Type = %v, want STARTTLS", ep.Type)
	}
}

func TestNewEndpointRejectsUnresolvableHost(t *testing.T) {
	_, err := NewEndpoint("this-host-does-not-exist.invalid", 25, Auto, tlspolicy.Policy{})
	if _, ok := err.(*diagerr.InvalidArgument); !ok {
		t.Fatalf("err = %v (%T), want *diagerr.InvalidArgument", err, err)
	}
}

func TestConnectionTypeString(t *testing.T) {
	cases := map[ConnectionType]string{
		Auto:               "auto",
		PlainText:          "plain",
		STARTTLS:           "starttls",
		TLS:                "tls",
		ConnectionType(99): "unknown",
	}
	for ct, want := range cases {
		if got := ct.String(); got != want {
			t.Errorf("ConnectionType(%d).String() = %q, want %q", ct, got, want)
		}
	}
}
