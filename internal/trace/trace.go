// Package trace extends golang.org/x/net/trace with msadiag's logger.
//
// The Validation Runner opens one Trace per compliance test, the way
// chasquid opens one per inbound connection or delivery attempt. The
// events recorded here go to the golang.org/x/net/trace event log and
// through the leveled logger (internal/log); the "Debug Log" a failing test
// prints comes from the Session transcript, not from these events.
package trace

import (
	"fmt"
	"strconv"

	"librarymarket.com/go/msadiag/internal/log"

	nettrace "golang.org/x/net/trace"
)

// A Trace represents the lifetime of a single compliance check.
type Trace struct {
	family string
	title  string
	t      nettrace.Trace
}

// New starts a trace for the given family/title pair.
func New(family, title string) *Trace {
	t := &Trace{family, title, nettrace.New(family, title)}

	// The default max events (10) is a bit short for a full SMTP exchange
	// (greeting, EHLO, STARTTLS, EHLO again, AUTH, MAIL, RCPT, RSET).
	t.t.SetMaxEvents(30)
	return t
}

// Printf adds this message to the trace's log.
func (t *Trace) Printf(format string, a ...interface{}) {
	t.t.LazyPrintf(format, a...)
	log.Log(log.Info, 1, "%s %s: %s", t.family, t.title, quote(fmt.Sprintf(format, a...)))
}

// Debugf adds this message to the trace's log, with a debugging level.
func (t *Trace) Debugf(format string, a ...interface{}) {
	t.t.LazyPrintf(format, a...)
	log.Log(log.Debug, 1, "%s %s: %s", t.family, t.title, quote(fmt.Sprintf(format, a...)))
}

// Errorf adds this message to the trace's log, with an error level, and
// returns the formatted error.
func (t *Trace) Errorf(format string, a ...interface{}) error {
	err := fmt.Errorf(format, a...)
	t.t.SetError()
	t.t.LazyPrintf("error: %v", err)
	log.Log(log.Info, 1, "%s %s: error: %s", t.family, t.title, quote(err.Error()))
	return err
}

// Error marks the trace as having seen an error, and logs it.
func (t *Trace) Error(err error) error {
	t.t.SetError()
	t.t.LazyPrintf("error: %v", err)
	log.Log(log.Info, 1, "%s %s: error: %s", t.family, t.title, quote(err.Error()))
	return err
}

// Finish the trace. It should not be used after this is called.
func (t *Trace) Finish() {
	t.t.Finish()
}

func quote(s string) string {
	qs := strconv.Quote(s)
	return qs[1 : len(qs)-1]
}
