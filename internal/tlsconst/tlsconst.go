// Package tlsconst contains TLS constants for human consumption.
//
// chasquid generates its cipher suite name table from IANA's assignments
// via a go:generate script; that generated file is not reproduced here.
// Since Go 1.14, crypto/tls exports the equivalent lookup
// (tls.CipherSuiteName), so this package delegates to it instead of
// hand-maintaining a second copy of the same table.
package tlsconst

import (
	"crypto/tls"
	"fmt"
)

var versionName = map[uint16]string{
	tls.VersionSSL30: "SSLv3",
	tls.VersionTLS10: "TLSv1",
	tls.VersionTLS11: "TLSv1.1",
	tls.VersionTLS12: "TLSv1.2",
	tls.VersionTLS13: "TLSv1.3",
}

// VersionName returns a human-readable TLS version name, in the form the
// Validation Runner's modern-TLS check compares against ("TLSv1",
// "TLSv1.1", "TLSv1.2", "TLSv1.3").
func VersionName(v uint16) string {
	name, ok := versionName[v]
	if !ok {
		return fmt.Sprintf("TLS-%#04x", v)
	}
	return name
}

// CipherSuiteName returns a human-readable TLS cipher suite name.
func CipherSuiteName(s uint16) string {
	return tls.CipherSuiteName(s)
}

// IsModern reports whether name (a VersionName result, e.g. from
// transport.Meta.Protocol) is TLSv1.2 or later. An empty or unrecognized
// name is not modern.
func IsModern(name string) bool {
	for v, n := range versionName {
		if n == name {
			return v >= tls.VersionTLS12
		}
	}
	return false
}
