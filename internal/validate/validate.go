// Package validate implements the Validation Runner: a fixed, ordered
// battery of compliance tests against a single MSA endpoint, each driving a
// fresh Session from a factory.Factory so no state leaks between tests.
//
// Checks run in an explicit ordered slice rather than via reflection-tagged
// discovery, the same shape cmd/chasquid-util uses for its command dispatch
// table, just ordered instead of keyed.
package validate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"librarymarket.com/go/msadiag/internal/diagerr"
	"librarymarket.com/go/msadiag/internal/factory"
	"librarymarket.com/go/msadiag/internal/sasl"
	"librarymarket.com/go/msadiag/internal/session"
	"librarymarket.com/go/msadiag/internal/tlsconst"
	"librarymarket.com/go/msadiag/internal/trace"
)

// Config parameterizes a validation run.
type Config struct {
	Endpoint session.Endpoint
	Sender   string
	// Username/Password are the credentials validated by
	// valid_credentials_accepted_and_submission_unlocked.
	// invalid_credentials_rejected does not use them; it generates random
	// hex values instead.
	Username, Password string
	// Strict enables the plain_text_auth_disallowed check, which requires
	// a second, PlainText-mode connection.
	Strict bool
	// ContinueAfterFailure is not read by Run: Run always executes every
	// applicable check regardless of earlier failures (each check
	// reconnects), whatever this field is set to.
	ContinueAfterFailure bool
}

// Result is one test's outcome.
type Result struct {
	Description string
	Passed      bool
	Err         error
	Transcript  string // populated only on failure
}

// check is one battery entry: a human description and the function that
// runs it against a fresh Session built from the Config's endpoint.
type check struct {
	description string
	strictOnly  bool
	// applicable reports whether this check makes sense for cfg; checks
	// that aren't applicable are omitted from the results entirely, the
	// same treatment strictOnly gets for a non-strict run.
	applicable func(cfg Config) bool
	run        func(f factory.Factory, cfg Config) (bool, string, error)
}

// notImplicitTLS reports whether cfg's endpoint negotiates in-band, i.e.
// isn't already TLS from the first byte. plain_text_auth_disallowed opens a
// second, PlainText connection to check that AUTH isn't advertised in the
// clear; against an implicit-TLS-only endpoint there is no cleartext phase
// to probe, so the check does not apply.
func notImplicitTLS(cfg Config) bool {
	return cfg.Endpoint.Type != session.TLS
}

func always(Config) bool { return true }

var battery = []check{
	{"plain text auth disallowed", true, notImplicitTLS, checkPlainTextAuthDisallowed},
	{"TLS protocol is modern", false, always, checkTLSProtocolModern},
	{"AUTH is supported", false, always, checkAuthSupported},
	{"a supported AUTH mechanism is advertised", false, always, checkAuthMechanismSupported},
	{"authentication is required for submission", false, always, checkAuthRequiredForSubmission},
	{"invalid credentials are rejected", false, always, checkInvalidCredentialsRejected},
	{"valid credentials unlock submission", false, always, checkValidCredentialsAcceptedAndSubmissionUnlocked},
}

// Run executes the battery in canonical order and returns one Result per
// applicable check (strict-only checks are skipped when !cfg.Strict, and
// checks whose applicable predicate rejects cfg are skipped regardless).
func Run(f factory.Factory, cfg Config) []Result {
	var results []Result
	for _, c := range battery {
		if c.strictOnly && !cfg.Strict {
			continue
		}
		if !c.applicable(cfg) {
			continue
		}

		tr := trace.New("validate", c.description)
		passed, transcript, err := c.run(f, cfg)
		if err != nil {
			tr.Error(err)
		} else if !passed {
			tr.Printf("check failed without an error")
		} else {
			tr.Printf("passed")
		}
		tr.Finish()

		results = append(results, Result{
			Description: c.description,
			Passed:      passed,
			Err:         err,
			Transcript:  transcript,
		})
	}
	return results
}

// freshSession obtains a connected, probed Session for ct, or reports the
// failure (and whatever transcript the attempt produced) to the caller.
func freshSession(f factory.Factory, cfg Config, ct session.ConnectionType) (*session.Session, string, error) {
	ep := cfg.Endpoint
	ep.Type = ct

	s, err := f.New(ep)
	if err != nil {
		return nil, "", err
	}

	if err := s.Probe(); err != nil {
		transcript := s.DebugTranscript()
		s.Disconnect()
		return nil, transcript, err
	}

	return s, "", nil
}

func checkPlainTextAuthDisallowed(f factory.Factory, cfg Config) (bool, string, error) {
	s, transcript, err := freshSession(f, cfg, session.PlainText)
	if err != nil {
		return false, transcript, err
	}
	defer s.Disconnect()

	if s.Extensions().Has("AUTH") {
		return false, s.DebugTranscript(), fmt.Errorf("server advertises AUTH over plaintext")
	}
	return true, "", nil
}

func checkTLSProtocolModern(f factory.Factory, cfg Config) (bool, string, error) {
	s, transcript, err := freshSession(f, cfg, cfg.Endpoint.Type)
	if err != nil {
		return false, transcript, err
	}
	defer s.Disconnect()

	meta := s.TransportMeta()
	if meta.Protocol == "" {
		return false, s.DebugTranscript(), fmt.Errorf("no TLS negotiated")
	}
	if !tlsconst.IsModern(meta.Protocol) {
		return false, s.DebugTranscript(), fmt.Errorf("negotiated protocol %s is not modern", meta.Protocol)
	}
	return true, "", nil
}

func checkAuthSupported(f factory.Factory, cfg Config) (bool, string, error) {
	s, transcript, err := freshSession(f, cfg, cfg.Endpoint.Type)
	if err != nil {
		return false, transcript, err
	}
	defer s.Disconnect()

	if !s.Extensions().Has("AUTH") {
		return false, s.DebugTranscript(), fmt.Errorf("server does not advertise AUTH")
	}
	return true, "", nil
}

func checkAuthMechanismSupported(f factory.Factory, cfg Config) (bool, string, error) {
	s, transcript, err := freshSession(f, cfg, cfg.Endpoint.Type)
	if err != nil {
		return false, transcript, err
	}
	defer s.Disconnect()

	if _, ok := sasl.Select(s.Extensions().Params("AUTH"), "", "x", "x"); !ok {
		return false, s.DebugTranscript(), fmt.Errorf("no supported AUTH mechanism advertised: %v", s.Extensions().Params("AUTH"))
	}
	return true, "", nil
}

func checkAuthRequiredForSubmission(f factory.Factory, cfg Config) (bool, string, error) {
	s, transcript, err := freshSession(f, cfg, cfg.Endpoint.Type)
	if err != nil {
		return false, transcript, err
	}
	defer s.Disconnect()

	required, err := s.IsAuthenticationRequired(cfg.Sender)
	if err != nil {
		return false, s.DebugTranscript(), err
	}
	if !required {
		return false, s.DebugTranscript(), fmt.Errorf("server allows unauthenticated submission")
	}
	return true, "", nil
}

func checkInvalidCredentialsRejected(f factory.Factory, cfg Config) (bool, string, error) {
	s, transcript, err := freshSession(f, cfg, cfg.Endpoint.Type)
	if err != nil {
		return false, transcript, err
	}
	defer s.Disconnect()

	mech, ok := sasl.Select(s.Extensions().Params("AUTH"), "", randomHex(), randomHex())
	if !ok {
		return false, s.DebugTranscript(), fmt.Errorf("no supported AUTH mechanism to test")
	}

	err = s.Authenticate(mech, true)
	if err == nil {
		return false, s.DebugTranscript(), fmt.Errorf("server accepted random credentials")
	}
	if _, ok := err.(*diagerr.AuthenticationFailure); !ok {
		return false, s.DebugTranscript(), err
	}
	return true, "", nil
}

func checkValidCredentialsAcceptedAndSubmissionUnlocked(f factory.Factory, cfg Config) (bool, string, error) {
	s, transcript, err := freshSession(f, cfg, cfg.Endpoint.Type)
	if err != nil {
		return false, transcript, err
	}
	defer s.Disconnect()

	mech, ok := sasl.Select(s.Extensions().Params("AUTH"), "", cfg.Username, cfg.Password)
	if !ok {
		return false, s.DebugTranscript(), fmt.Errorf("no supported AUTH mechanism to authenticate with")
	}

	if err := s.Authenticate(mech, true); err != nil {
		return false, s.DebugTranscript(), err
	}

	required, err := s.IsAuthenticationRequired(cfg.Sender)
	if err != nil {
		return false, s.DebugTranscript(), err
	}
	if required {
		return false, s.DebugTranscript(), fmt.Errorf("submission still locked after authenticating")
	}
	return true, "", nil
}

func randomHex() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is unrecoverable; the process environment
		// itself is broken.
		panic(err)
	}
	return hex.EncodeToString(buf[:])
}
