package smtpwire

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeLines struct {
	lines []string
	err   error
}

func (f *fakeLines) ReadLine() (string, error) {
	if len(f.lines) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", errors.New("fakeLines: exhausted")
	}
	l := f.lines[0]
	f.lines = f.lines[1:]
	return l, nil
}

func TestParseSingleLine(t *testing.T) {
	r := &fakeLines{lines: []string{"220 mail.example ESMTP"}}
	rep, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Reply{Code: 220, Lines: []string{"mail.example ESMTP"}}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMultiLineEHLO(t *testing.T) {
	r := &fakeLines{lines: []string{
		"250-mail.example",
		"250-PIPELINING",
		"250-SIZE 10485760",
		"250 AUTH PLAIN LOGIN",
	}}
	rep, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Reply{
		Code: 250,
		Lines: []string{
			"mail.example",
			"PIPELINING",
			"SIZE 10485760",
			"AUTH PLAIN LOGIN",
		},
	}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	r := &fakeLines{lines: []string{
		"this is not a reply line at all",
		"250-mail.example",
		"garbage\t",
		"250 ok",
	}}
	rep, err := Parse(r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Reply{Code: 250, Lines: []string{"mail.example", "ok"}}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNoTerminator(t *testing.T) {
	r := &fakeLines{err: errors.New("eof")}
	rep, err := Parse(r)
	if err == nil {
		t.Fatalf("Parse succeeded, want error")
	}
	if rep.HasCode() {
		t.Errorf("Parse returned a reply with a code on failure: %+v", rep)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	want := Reply{
		Code:  250,
		Lines: []string{"mail.example", "PIPELINING", "SIZE 10485760", "AUTH PLAIN LOGIN"},
	}

	var lines []string
	rendered := want.String()
	start := 0
	for i := 0; i < len(rendered); i++ {
		if rendered[i] == '\n' {
			lines = append(lines, rendered[start:i-1]) // strip trailing \r
			start = i + 1
		}
	}

	got, err := Parse(&fakeLines{lines: lines})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReplyCodeBounds(t *testing.T) {
	for code := 200; code <= 599; code++ {
		class := code / 100
		if class < 2 || class > 5 {
			continue
		}
		r := &fakeLines{lines: []string{itoa3(code) + " ok"}}
		rep, err := Parse(r)
		if err != nil {
			t.Fatalf("Parse(%d): %v", code, err)
		}
		if rep.Code != code {
			t.Errorf("Parse(%d).Code = %d", code, rep.Code)
		}
	}
}

func itoa3(n int) string {
	digits := "0123456789"
	return string([]byte{digits[n/100], digits[(n/10)%10], digits[n%10]})
}
