// Package envelope validates and splits mailbox addresses used in MAIL
// FROM/RCPT TO probing. Adapted from chasquid's internal/envelope, trimmed
// to the syntax checks a one-shot client needs; the local-delivery and
// header-rewriting helpers the daemon used have no place here.
package envelope

import (
	"net/mail"
	"strings"
)

// Split a user@domain address into user and domain.
func Split(addr string) (string, string) {
	ps := strings.SplitN(addr, "@", 2)
	if len(ps) != 2 {
		return addr, ""
	}
	return ps[0], ps[1]
}

// UserOf returns the local part of user@domain.
func UserOf(addr string) string {
	user, _ := Split(addr)
	return user
}

// DomainOf returns the domain part of user@domain.
func DomainOf(addr string) string {
	_, domain := Split(addr)
	return domain
}

// ValidSender reports whether addr is acceptable as a MAIL FROM argument:
// either empty (the null reverse-path) or a syntactically valid address
// with a domain part, the same check chasquid's conn.go MAIL handler
// applies before accepting a sender.
func ValidSender(addr string) bool {
	if addr == "" {
		return true
	}

	e, err := mail.ParseAddress(addr)
	if err != nil || e.Address == "" {
		return false
	}
	if !strings.Contains(e.Address, "@") {
		return false
	}
	// https://tools.ietf.org/html/rfc5321#section-4.5.3.1.3
	if len(e.Address) > 256 {
		return false
	}
	return true
}
