package tlsconst

import (
	"crypto/tls"
	"testing"
)

func TestVersionName(t *testing.T) {
	cases := []struct {
		ver      uint16
		expected string
	}{
		{tls.VersionTLS10, "TLSv1"},
		{tls.VersionTLS11, "TLSv1.1"},
		{tls.VersionTLS12, "TLSv1.2"},
		{tls.VersionTLS13, "TLSv1.3"},
		{0x1234, "TLS-0x1234"},
	}
	for _, c := range cases {
		got := VersionName(c.ver)
		if got != c.expected {
			t.Errorf("VersionName(%#x) = %q, expected %q", c.ver, got, c.expected)
		}
	}
}

func TestCipherSuiteName(t *testing.T) {
	// TLS_AES_128_GCM_SHA256 is a cipher suite Go's crypto/tls knows by
	// name; delegate and make sure we get a non-empty, stable name back.
	got := CipherSuiteName(tls.TLS_AES_128_GCM_SHA256)
	if got != "TLS_AES_128_GCM_SHA256" {
		t.Errorf("CipherSuiteName(TLS_AES_128_GCM_SHA256) = %q", got)
	}
}

func TestIsModern(t *testing.T) {
	cases := []struct {
		name   string
		modern bool
	}{
		{"SSLv3", false},
		{"TLSv1", false},
		{"TLSv1.1", false},
		{"TLSv1.2", true},
		{"TLSv1.3", true},
		{"", false},
		{"TLS-0x1234", false},
	}
	for _, c := range cases {
		if got := IsModern(c.name); got != c.modern {
			t.Errorf("IsModern(%q) = %v, expected %v", c.name, got, c.modern)
		}
	}
}
