// Package sasl implements the client side of the three SASL mechanisms an
// MSA diagnostic run exercises: PLAIN, LOGIN, and CRAM-MD5.
//
// The Start/Next shape follows arp242/blackmail's smtp/auth.go (itself
// adapted from net/smtp), generalized so the Session drives all three
// through one interface instead of a single hardcoded mechanism.
package sasl

import (
	"crypto/hmac"
	"crypto/md5"
	"fmt"
	"strings"

	"librarymarket.com/go/msadiag/internal/diagerr"
)

// Mechanism drives one SASL challenge-response exchange. Name returns the
// mechanism's wire name; Start returns its initial response, if any (nil
// means "no initial response", distinct from an empty one). Next is called
// for every subsequent 334 continuation the server sends.
type Mechanism interface {
	Name() string
	Start() (initialResponse []byte, err error)
	Next(challenge []byte) (response []byte, err error)

	// Reset clears any per-attempt state, so a Session can retry
	// authentication with the same Mechanism value and fresh credentials.
	Reset()
}

type plainMechanism struct {
	Identity, Username, Password string
}

// Plain implements RFC 4616 PLAIN. identity may be empty, meaning "same as
// username".
func Plain(identity, username, password string) Mechanism {
	return &plainMechanism{identity, username, password}
}

func (m *plainMechanism) Name() string { return "PLAIN" }

func (m *plainMechanism) Start() ([]byte, error) {
	return []byte(m.Identity + "\x00" + m.Username + "\x00" + m.Password), nil
}

func (m *plainMechanism) Next(challenge []byte) ([]byte, error) {
	return nil, &diagerr.MechanismMisuse{Mechanism: m.Name(), Reason: "server sent a continuation; PLAIN has none"}
}

func (m *plainMechanism) Reset() {}

type loginMechanism struct {
	Username, Password string
	sentUsername       bool
	sentPassword       bool
}

// Login implements the informal LOGIN mechanism: the server's two prompts
// are matched by content ("Username:", "Password:"), not by position, since
// some servers reorder them. Each prompt is answered at most once; a
// repeated or unknown prompt is a MechanismMisuse.
func Login(username, password string) Mechanism {
	return &loginMechanism{Username: username, Password: password}
}

func (m *loginMechanism) Name() string { return "LOGIN" }

func (m *loginMechanism) Start() ([]byte, error) {
	return nil, nil
}

func (m *loginMechanism) Next(challenge []byte) ([]byte, error) {
	switch strings.TrimSpace(string(challenge)) {
	case "Username:":
		if m.sentUsername {
			return nil, &diagerr.MechanismMisuse{Mechanism: m.Name(), Reason: "repeated Username: prompt"}
		}
		m.sentUsername = true
		return []byte(m.Username), nil
	case "Password:":
		if m.sentPassword {
			return nil, &diagerr.MechanismMisuse{Mechanism: m.Name(), Reason: "repeated Password: prompt"}
		}
		m.sentPassword = true
		return []byte(m.Password), nil
	default:
		return nil, &diagerr.MechanismMisuse{Mechanism: m.Name(), Reason: fmt.Sprintf("unknown prompt %q", challenge)}
	}
}

func (m *loginMechanism) Reset() {
	m.sentUsername = false
	m.sentPassword = false
}

type cramMD5Mechanism struct {
	Username, Secret string
}

// CramMD5 implements RFC 2195 CRAM-MD5: the server's single challenge is
// hashed with HMAC-MD5 keyed by secret, the response is "username hexdigest".
func CramMD5(username, secret string) Mechanism {
	return &cramMD5Mechanism{username, secret}
}

func (m *cramMD5Mechanism) Name() string { return "CRAM-MD5" }

func (m *cramMD5Mechanism) Start() ([]byte, error) {
	return nil, nil
}

func (m *cramMD5Mechanism) Next(challenge []byte) ([]byte, error) {
	if len(challenge) == 0 {
		return nil, &diagerr.MechanismMisuse{Mechanism: m.Name(), Reason: "empty challenge"}
	}
	d := hmac.New(md5.New, []byte(m.Secret))
	d.Write(challenge)
	return []byte(fmt.Sprintf("%s %x", m.Username, d.Sum(nil))), nil
}

func (m *cramMD5Mechanism) Reset() {}

// priority is the fixed preference order Select applies: strongest
// mechanism first, so a server advertising all three is probed with
// CRAM-MD5 rather than PLAIN.
var priority = []string{"CRAM-MD5", "LOGIN", "PLAIN"}

// Select picks the strongest mechanism the server advertised (advertised,
// a set of mechanism names from the EHLO AUTH line) that credentials
// support building, and constructs it. It returns false if none of the
// advertised mechanisms are ones this package implements.
func Select(advertised []string, identity, username, password string) (Mechanism, bool) {
	has := map[string]bool{}
	for _, a := range advertised {
		has[a] = true
	}

	for _, name := range priority {
		if !has[name] {
			continue
		}
		switch name {
		case "CRAM-MD5":
			return CramMD5(username, password), true
		case "LOGIN":
			return Login(username, password), true
		case "PLAIN":
			return Plain(identity, username, password), true
		}
	}
	return nil, false
}
