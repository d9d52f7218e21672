// msadiag is a command-line tool for diagnosing a mail submission agent's
// SMTP-AUTH and STARTTLS setup: it runs a fixed compliance battery
// (validate) or reports raw protocol observations (probe:extensions,
// probe:encryption). It plays the same role for MSA diagnosis that
// cmd/smtp-check plays for MX/STS/SPF diagnosis in chasquid.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	docopt "github.com/docopt/docopt-go"

	"librarymarket.com/go/msadiag/internal/factory"
	"librarymarket.com/go/msadiag/internal/probe"
	"librarymarket.com/go/msadiag/internal/session"
	"librarymarket.com/go/msadiag/internal/tlspolicy"
	"librarymarket.com/go/msadiag/internal/validate"
)

const usage = `msadiag.

Usage:
  msadiag validate <host> <port> <username> <password> [--strict] [--tls] [--sender=<addr>]
  msadiag probe:encryption <host> <port> [--tls] [--format=<format>]
  msadiag probe:extensions <host> <port> [--encryption-type=<type>] [--format=<format>]
  msadiag -h | --help

Options:
  --strict               Also require AUTH to be absent over plaintext.
  --tls                  Use implicit TLS instead of STARTTLS.
  --sender=<addr>        Probe sender address for the submission check [default: ].
  --format=<format>      console, csv, or json [default: console].
  --encryption-type=<type>  auto, none, plain, starttls, or tls [default: auto].
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts docopt.Opts) error {
	host, _ := opts.String("<host>")
	portStr, _ := opts.String("<port>")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	useTLS, _ := opts.Bool("--tls")

	switch {
	case truthy(opts, "validate"):
		return runValidate(opts, host, port, useTLS)
	case truthy(opts, "probe:encryption"):
		return runProbeEncryption(opts, host, port, useTLS)
	case truthy(opts, "probe:extensions"):
		return runProbeExtensions(opts, host, port)
	}
	return fmt.Errorf("no command matched")
}

func truthy(opts docopt.Opts, key string) bool {
	v, _ := opts.Bool(key)
	return v
}

func connectionType(useTLS bool) session.ConnectionType {
	if useTLS {
		return session.TLS
	}
	return session.STARTTLS
}

func runValidate(opts docopt.Opts, host string, port int, useTLS bool) error {
	username, _ := opts.String("<username>")
	password, _ := opts.String("<password>")
	sender, _ := opts.String("--sender")
	strict, _ := opts.Bool("--strict")

	ep, err := session.NewEndpoint(host, port, connectionType(useTLS), tlspolicy.Validate(""))
	if err != nil {
		return err
	}

	cfg := validate.Config{
		Endpoint: ep,
		Sender:   sender,
		Username: username,
		Password: password,
		Strict:   strict,
	}

	results := validate.Run(factory.NewDialer(), cfg)

	failed := false
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			failed = true
		}
		fmt.Printf("%-55s %s\n", r.Description, status)
		if !r.Passed {
			fmt.Fprintf(os.Stderr, "--- Debug Log: %s ---\n", r.Description)
			if r.Err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", r.Err)
			}
			fmt.Fprintln(os.Stderr, r.Transcript)
		}
	}

	if failed {
		os.Exit(1)
	}
	return nil
}

func runProbeEncryption(opts docopt.Opts, host string, port int, useTLS bool) error {
	format, _ := opts.String("--format")

	ep, err := session.NewEndpoint(host, port, connectionType(useTLS), tlspolicy.Observe())
	if err != nil {
		return err
	}

	enc, err := probe.Encrypt(factory.NewDialer(), ep)
	if err != nil {
		return err
	}

	return renderFields(format, []fieldRow{
		{"protocol", enc.Protocol},
		{"cipher_name", enc.CipherName},
		{"cipher_bits", enc.CipherBits},
		{"cipher_version", enc.CipherVersion},
	})
}

func runProbeExtensions(opts docopt.Opts, host string, port int) error {
	format, _ := opts.String("--format")
	encType, _ := opts.String("--encryption-type")

	ct, err := parseConnectionType(encType)
	if err != nil {
		return err
	}

	ep, err := session.NewEndpoint(host, port, ct, tlspolicy.Observe())
	if err != nil {
		return err
	}

	entries, err := probe.Extensions(factory.NewDialer(), ep)
	if err != nil {
		return err
	}

	rows := make([]fieldRow, len(entries))
	for i, e := range entries {
		value := ""
		for j, p := range e.Params {
			if j > 0 {
				value += " "
			}
			value += p
		}
		rows[i] = fieldRow{e.Keyword, value}
	}
	return renderFields(format, rows)
}

func parseConnectionType(s string) (session.ConnectionType, error) {
	switch s {
	case "auto":
		return session.Auto, nil
	case "none", "plain":
		return session.PlainText, nil
	case "starttls":
		return session.STARTTLS, nil
	case "tls":
		return session.TLS, nil
	default:
		return session.Auto, fmt.Errorf("unknown encryption-type %q", s)
	}
}

// fieldRow is one Name/Value (or Field/Value) row of probe output.
type fieldRow struct {
	Name  string
	Value string
}

func renderFields(format string, rows []fieldRow) error {
	switch format {
	case "console", "":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Value)
		}
		return w.Flush()
	case "csv":
		cw := csv.NewWriter(os.Stdout)
		cw.Write([]string{"Name", "Value"})
		for _, r := range rows {
			cw.Write([]string{r.Name, r.Value})
		}
		cw.Flush()
		return cw.Error()
	case "json":
		m := make(map[string]string, len(rows))
		for _, r := range rows {
			m[r.Name] = r.Value
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
