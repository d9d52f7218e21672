// Package session implements the SMTP client state machine: greeting,
// EHLO/HELO negotiation, STARTTLS upgrade, SASL AUTH, and the MAIL/RCPT
// submission probe. It is the direct client-side counterpart of chasquid's
// internal/smtpsrv.Conn (which drives the same dialogue server-side) and
// internal/courier's delivery attempt (which drives EHLO/STARTTLS/MAIL/RCPT
// as a client, albeit for real delivery rather than diagnosis).
package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"librarymarket.com/go/msadiag/internal/diagerr"
	"librarymarket.com/go/msadiag/internal/envelope"
	"librarymarket.com/go/msadiag/internal/sasl"
	"librarymarket.com/go/msadiag/internal/smtpwire"
	"librarymarket.com/go/msadiag/internal/transport"
)

// HeloDomain is the fixed EHLO/HELO identity this client presents, per the
// deployment this tool was built for.
const HeloDomain = "librarymarket.com"

// probeRecipientDomain is the domain used for the synthetic RCPT TO
// recipient generated by IsAuthenticationRequired.
const probeRecipientDomain = "librarymarket.com"

// state tracks where in the protocol state machine the Session is, purely
// for precondition checks; it is never exposed directly.
type state int

const (
	stateUnconnected state = iota
	stateConnected
	stateGreeted
	stateNegotiated // Extended or Basic: probe() has finished
	stateAuthenticated
	stateClosed
)

// Session owns one Transport for the lifetime of a single SMTP dialogue.
type Session struct {
	endpoint Endpoint
	tr       *transport.Transport
	st       state

	identity   string
	extensions ExtensionTable
}

// New constructs an unconnected Session for endpoint. Use Connect to open
// the underlying Transport.
func New(endpoint Endpoint) *Session {
	return &Session{endpoint: endpoint, st: stateUnconnected}
}

// NewWithTransport wraps an already-open Transport as a connected Session,
// skipping Connect/dialing entirely. This is the seam the Connection
// Factory's test double uses to hand a Session a scripted in-process peer.
func NewWithTransport(endpoint Endpoint, tr *transport.Transport) *Session {
	return &Session{endpoint: endpoint, tr: tr, st: stateConnected}
}

// Connect opens the Transport. Fails with diagerr.AlreadyConnected if
// called more than once.
func (s *Session) Connect(connectTimeout, ioTimeout time.Duration) error {
	if s.st != stateUnconnected {
		return diagerr.AlreadyConnected
	}

	useTLS := s.endpoint.Type == TLS
	tr, err := transport.Open(s.endpoint.Addr(), s.endpoint.Host, useTLS, s.endpoint.TLS, connectTimeout, ioTimeout)
	if err != nil {
		return err
	}

	s.tr = tr
	s.st = stateConnected
	return nil
}

// Identity returns the server's self-reported name from its 220 greeting.
// Only meaningful after a successful Probe.
func (s *Session) Identity() string { return s.identity }

// Extensions returns the frozen extension table built by Probe. Only
// meaningful after a successful Probe.
func (s *Session) Extensions() ExtensionTable { return s.extensions }

// DebugTranscript returns the accumulated wire transcript for this Session.
func (s *Session) DebugTranscript() string { return s.tr.Transcript().String() }

// TransportMeta exposes the negotiated TLS parameters, if any, of this
// Session's Transport.
func (s *Session) TransportMeta() transport.Meta { return s.tr.Meta() }

// Probe drives greeting, EHLO/HELO, and (if applicable) STARTTLS, leaving
// the Session in a state where Extensions and Identity are valid and
// frozen for the remainder of the Session's life.
func (s *Session) Probe() error {
	if err := s.readGreeting(); err != nil {
		return err
	}

	table, err := s.ehloOrHelo()
	if err != nil {
		return err
	}
	s.extensions = table

	switch s.endpoint.Type {
	case STARTTLS:
		if !s.extensions.Has("STARTTLS") {
			return &diagerr.CryptoFailure{Detail: diagerr.StartTLSUnsupported}
		}
		if err := s.upgrade(); err != nil {
			return err
		}
	case Auto:
		if s.extensions.Has("STARTTLS") {
			if err := s.upgrade(); err != nil {
				return err
			}
		}
	case PlainText, TLS:
		// PlainText never upgrades; TLS was already live before Probe ran.
	}

	s.st = stateNegotiated
	return nil
}

func (s *Session) readGreeting() error {
	rep, err := smtpwire.Parse(s.tr)
	if err != nil {
		return err
	}
	if !rep.HasCode() || rep.Code != smtpwire.CodeServiceReady {
		return &diagerr.ServerGreetingFailure{Code: rep.Code, Lines: rep.Lines}
	}

	if s.identity == "" && len(rep.Lines) > 0 {
		fields := strings.Fields(rep.Lines[0])
		if len(fields) > 0 {
			s.identity = fields[0]
		}
	}

	s.st = stateGreeted
	return nil
}

// ehloOrHelo tries EHLO first, falling back to HELO (which yields an empty
// extension table but is not itself a failure).
func (s *Session) ehloOrHelo() (ExtensionTable, error) {
	rep, err := s.command("EHLO", HeloDomain)
	if err != nil {
		return nil, err
	}
	if rep.Code == smtpwire.CodeOK {
		return buildExtensionTable(rep.Lines), nil
	}

	rep, err = s.command("HELO", HeloDomain)
	if err != nil {
		return nil, err
	}
	if rep.Code != smtpwire.CodeOK {
		return nil, &diagerr.ClientGreetingFailure{Verb: "HELO", Code: rep.Code, Lines: rep.Lines}
	}
	return ExtensionTable{}, nil
}

func (s *Session) upgrade() error {
	rep, err := s.command("STARTTLS", "")
	if err != nil {
		return err
	}
	if rep.Code != smtpwire.CodeServiceReady {
		return &diagerr.CryptoFailure{Detail: fmt.Sprintf("STARTTLS refused: code %d", rep.Code)}
	}

	if err := s.tr.StartTLS(s.endpoint.Host, s.endpoint.TLS); err != nil {
		return err
	}

	table, err := s.ehloOrHelo()
	if err != nil {
		return err
	}
	s.extensions = table
	return nil
}

// IsAuthenticationRequired runs the MAIL FROM/RCPT TO submission probe and
// reports whether the server demanded authentication first. sender must be
// empty or a syntactically valid mailbox address.
func (s *Session) IsAuthenticationRequired(sender string) (bool, error) {
	if !envelope.ValidSender(sender) {
		return false, &diagerr.InvalidArgument{Reason: "sender must be empty or a valid mailbox address"}
	}

	defer s.resetBestEffort()

	rep, err := s.command("MAIL", fmt.Sprintf("FROM:<%s>", sender))
	if err != nil {
		return false, err
	}

	final := rep
	if rep.Code == smtpwire.CodeOK {
		rcpt, err := randomRecipient()
		if err != nil {
			return false, &diagerr.InvalidArgument{Reason: "generating probe recipient: " + err.Error()}
		}
		final, err = s.command("RCPT", fmt.Sprintf("TO:<%s>", rcpt))
		if err != nil {
			return false, err
		}
	}

	switch final.Code {
	case smtpwire.CodeOK, smtpwire.CodeUserNotLocal:
		return false, nil
	case smtpwire.CodeAuthRequired, smtpwire.CodeMailboxNotFound,
		smtpwire.CodeUserNotLocalTry, smtpwire.CodeTransactionFailed:
		return true, nil
	case smtpwire.CodeSyntaxParamError:
		if sender == "" {
			return false, &diagerr.InvalidArgument{Reason: diagerr.SenderRequired}
		}
		return false, &diagerr.ProtocolFailure{Context: "mail_rcpt", Code: final.Code, Lines: final.Lines}
	default:
		return false, &diagerr.ProtocolFailure{Context: "mail_rcpt", Code: final.Code, Lines: final.Lines}
	}
}

func (s *Session) resetBestEffort() {
	s.command("RSET", "")
}

// Authenticate drives one AUTH attempt using mechanism, hiding the payload
// lines in the transcript when hideAuthReplies is true.
func (s *Session) Authenticate(mechanism sasl.Mechanism, hideAuthReplies bool) error {
	advertised := s.extensions.Params("AUTH")
	if !containsFold(advertised, mechanism.Name()) {
		return &diagerr.AuthenticationFailure{Reason: "unsupported"}
	}

	s.tr.SetAuthGuard(hideAuthReplies)
	defer func() {
		mechanism.Reset()
		s.tr.SetAuthGuard(false)
	}()

	ir, err := mechanism.Start()
	if err != nil {
		return err
	}

	var rep smtpwire.Reply
	if ir != nil {
		rep, err = s.command("AUTH", mechanism.Name()+" "+encodeB64(ir))
	} else {
		rep, err = s.command("AUTH", mechanism.Name())
	}
	if err != nil {
		return err
	}

	for rep.Code == smtpwire.CodeAuthContinue {
		challenge, err := decodeB64Lines(rep.Lines)
		if err != nil {
			return &diagerr.MechanismMisuse{Mechanism: mechanism.Name(), Reason: err.Error()}
		}
		resp, err := mechanism.Next(challenge)
		if err != nil {
			return err
		}
		rep, err = s.command(encodeB64(resp), "")
		if err != nil {
			return err
		}
	}

	if !rep.HasCode() {
		return &diagerr.AuthenticationFailure{Reason: "no_response"}
	}
	if rep.Code != smtpwire.CodeAuthOK {
		return &diagerr.AuthenticationFailure{Reason: "rejected", Code: rep.Code, Lines: rep.Lines}
	}

	s.st = stateAuthenticated
	return nil
}

// Disconnect best-effort sends QUIT, then closes the transport. Safe to
// call repeatedly or on a Session that never connected.
func (s *Session) Disconnect() {
	if s.st == stateClosed || s.tr == nil {
		s.st = stateClosed
		return
	}
	s.command("QUIT", "")
	s.tr.Close()
	s.st = stateClosed
}

// command writes "verb params" (or just verb if params is empty) and
// parses the reply. A command with an empty verb writes params verbatim,
// used for SASL continuation lines that have no command verb.
func (s *Session) command(verb, params string) (smtpwire.Reply, error) {
	line := verb
	if params != "" {
		if verb != "" {
			line = verb + " " + params
		} else {
			line = params
		}
	}
	if err := s.tr.WriteLine(line); err != nil {
		return smtpwire.Reply{}, err
	}
	return smtpwire.Parse(s.tr)
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// randomRecipient generates the synthetic RCPT TO target: 8 cryptographically
// random bytes rendered as 16 hex characters, at probeRecipientDomain.
func randomRecipient() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]) + "@" + probeRecipientDomain, nil
}

func encodeB64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// decodeB64Lines base64-decodes the single line a 334 continuation carries.
// An AUTH continuation has exactly one text line; more or fewer is malformed.
func decodeB64Lines(lines []string) ([]byte, error) {
	if len(lines) != 1 {
		return nil, fmt.Errorf("expected exactly one continuation line, got %d", len(lines))
	}
	return base64.StdEncoding.DecodeString(lines[0])
}
