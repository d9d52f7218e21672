package probe

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"librarymarket.com/go/msadiag/internal/factory"
	"librarymarket.com/go/msadiag/internal/session"
	"librarymarket.com/go/msadiag/internal/transport"
)

func pipedFactory(server func(net.Conn)) factory.Factory {
	return factory.Func(func(ep session.Endpoint) (*session.Session, error) {
		client, srv := net.Pipe()
		go func() {
			defer srv.Close()
			server(srv)
		}()
		tr := transport.NewFromConn(client, time.Second)
		return session.NewWithTransport(ep, tr), nil
	})
}

func TestExtensionsSortedByKeywordThenParamCountDescending(t *testing.T) {
	f := pipedFactory(func(conn net.Conn) {
		r := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 mail.example ESMTP\r\n")
		r.ReadString('\n') // EHLO
		fmt.Fprintf(conn, "250-mail.example\r\n")
		fmt.Fprintf(conn, "250-PIPELINING\r\n")
		fmt.Fprintf(conn, "250-AUTH PLAIN LOGIN CRAM-MD5\r\n")
		fmt.Fprintf(conn, "250 SIZE 10485760\r\n")
		r.ReadString('\n') // QUIT
		fmt.Fprintf(conn, "221 bye\r\n")
	})

	ep := session.Endpoint{Host: "localhost", Port: 25, Type: session.Auto}
	entries, err := Extensions(f, ep)
	if err != nil {
		t.Fatalf("Extensions: %v", err)
	}

	var got []string
	for _, e := range entries {
		got = append(got, e.Keyword)
	}
	want := []string{"AUTH", "SIZE", "PIPELINING"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEncryptReportsUnknownWithoutTLS(t *testing.T) {
	f := pipedFactory(func(conn net.Conn) {
		r := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 mail.example ESMTP\r\n")
		r.ReadString('\n')
		fmt.Fprintf(conn, "250 mail.example\r\n")
		r.ReadString('\n')
		fmt.Fprintf(conn, "221 bye\r\n")
	})

	ep := session.Endpoint{Host: "localhost", Port: 25, Type: session.Auto}
	enc, err := Encrypt(f, ep)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if enc.Protocol != unknown || enc.CipherName != unknown ||
		enc.CipherBits != unknown || enc.CipherVersion != unknown {
		t.Errorf("Encrypt = %+v, want all %q", enc, unknown)
	}
}
