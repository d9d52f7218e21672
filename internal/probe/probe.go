// Package probe implements the two read-only diagnostic operations:
// probe:extensions, which reports the server's advertised ESMTP extension
// table, and probe:encryption, which reports the negotiated TLS parameters.
// Both are thin wrappers over a connect+Probe cycle; neither authenticates
// or submits mail, mirroring cmd/smtp-check's read-only TLS/MX inspection
// in chasquid.
package probe

import (
	"sort"
	"strconv"

	"librarymarket.com/go/msadiag/internal/factory"
	"librarymarket.com/go/msadiag/internal/session"
)

// unknown is substituted for any TLS metadata field the handshake did not
// populate (no TLS negotiated at all, or a cipher suite cipherBits doesn't
// recognize).
const unknown = "Unknown"

// ExtensionEntry is one row of a probe:extensions report: an advertised
// ESMTP keyword and its parameter tokens.
type ExtensionEntry struct {
	Keyword string
	Params  []string
}

// Extensions connects to endpoint, probes it, and returns its extension
// table sorted ascending by keyword, then stable-sorted by descending
// parameter-list length so the most parameterized keywords (AUTH, SIZE)
// surface first within any length-tied group's original alphabetical order.
func Extensions(f factory.Factory, endpoint session.Endpoint) ([]ExtensionEntry, error) {
	s, err := f.New(endpoint)
	if err != nil {
		return nil, err
	}
	defer s.Disconnect()

	if err := s.Probe(); err != nil {
		return nil, err
	}

	table := s.Extensions()
	entries := make([]ExtensionEntry, 0, len(table))
	for keyword, params := range table {
		entries = append(entries, ExtensionEntry{Keyword: keyword, Params: params})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Keyword < entries[j].Keyword })
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].Params) > len(entries[j].Params)
	})
	return entries, nil
}

// Encryption is the rendered field set probe:encryption reports. Any field
// the handshake left unpopulated is the literal string "Unknown" rather
// than a zero value, so console/csv/json output never shows a bare "0" or
// empty string for an absent cipher.
type Encryption struct {
	Protocol      string
	CipherName    string
	CipherBits    string
	CipherVersion string
}

// Encrypt connects to endpoint, probes it, and reports the negotiated TLS
// parameters. If endpoint never negotiates TLS (PlainText, or Auto against
// a server without STARTTLS), every field is "Unknown".
func Encrypt(f factory.Factory, endpoint session.Endpoint) (Encryption, error) {
	s, err := f.New(endpoint)
	if err != nil {
		return Encryption{}, err
	}
	defer s.Disconnect()

	if err := s.Probe(); err != nil {
		return Encryption{}, err
	}

	meta := s.TransportMeta()
	enc := Encryption{
		Protocol:      orUnknown(meta.Protocol),
		CipherName:    orUnknown(meta.CipherName),
		CipherVersion: orUnknown(meta.CipherVersion),
		CipherBits:    unknown,
	}
	if meta.CipherBits > 0 {
		enc.CipherBits = strconv.Itoa(meta.CipherBits)
	}
	return enc, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
