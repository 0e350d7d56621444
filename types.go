package ldapauth

import (
	"errors"
	"fmt"
	"io"

	"github.com/dirauth/ldapauth/internal/directory"
	"github.com/dirauth/ldapauth/internal/filter"
)

// Credentials is one authentication attempt's input. The password is
// transient: never persisted, never logged.
type Credentials struct {
	Username string
	Password string
}

// Result reports a successful authentication. A nil *Result from
// Authenticate is the absence-signal: the user was not found or the
// password was wrong, deliberately indistinguishable.
type Result struct {
	// Username is the username that authenticated.
	Username string

	// DN is the distinguished name of the entry that accepted the
	// password.
	DN string

	// Attributes is the matched entry's attribute view.
	Attributes map[string][]string
}

// ErrAuthenticationFailed is returned by Test when the credentials do
// not identify a directory entry. It covers missing input, unknown
// user and wrong password alike, so callers cannot enumerate
// usernames.
var ErrAuthenticationFailed = errors.New("invalid username or password")

// ErrNotConfigured is returned when the provider is used before
// Configure has been called.
var ErrNotConfigured = errors.New("authentication provider is not configured")

// Conn abstracts the directory connection; satisfied by the production
// LDAP connection and by fakes in tests.
type Conn = directory.Conn

// Dialer produces the connection a verification call runs on. Supply
// one with WithDialer to intercept network activity in tests.
type Dialer = directory.Dialer

// DialerFunc adapts a func to the Dialer interface.
type DialerFunc = directory.DialerFunc

// IsConnectionError reports whether err is a transport, TLS or
// service-bind failure.
func IsConnectionError(err error) bool { return directory.IsConnectionError(err) }

// IsSearchFailed reports whether err is a non-success search status.
func IsSearchFailed(err error) bool { return directory.IsSearchFailed(err) }

// IsInvalidVariable reports whether err is a filter template
// referencing an unknown variable.
func IsInvalidVariable(err error) bool { return filter.IsInvalidVariable(err) }

// ProgressSink receives human-readable narration of a verification
// call for operator diagnostics. Implementations must not assume any
// call ordering beyond: steps and entries first, one Outcome last.
// The raw password never reaches a sink.
type ProgressSink interface {
	// Step narrates a coarse step: connecting, binding, searching.
	Step(message string)

	// Entry narrates one candidate bind attempt, 1-based.
	Entry(dn string, index, total int)

	// Outcome reports the final result; nil means not authenticated.
	Outcome(result *Result)
}

// WriterSink returns a ProgressSink that prints one line per event to
// w. Useful for command-line diagnostics.
func WriterSink(w io.Writer) ProgressSink {
	return &writerSink{w: w}
}

type writerSink struct {
	w io.Writer
}

func (s *writerSink) Step(message string) {
	fmt.Fprintln(s.w, message)
}

func (s *writerSink) Entry(dn string, index, total int) {
	fmt.Fprintf(s.w, "trying entry %d/%d: %s\n", index, total, dn)
}

func (s *writerSink) Outcome(result *Result) {
	if result == nil {
		fmt.Fprintln(s.w, "not authenticated")
		return
	}
	fmt.Fprintf(s.w, "authenticated %s as %s\n", result.Username, result.DN)
}

// progress wraps an optional sink so call sites need no nil checks.
type progress struct {
	sink ProgressSink
}

func (p progress) step(format string, args ...any) {
	if p.sink != nil {
		p.sink.Step(fmt.Sprintf(format, args...))
	}
}

func (p progress) entry(dn string, index, total int) {
	if p.sink != nil {
		p.sink.Entry(dn, index, total)
	}
}

func (p progress) outcome(result *Result) {
	if p.sink != nil {
		p.sink.Outcome(result)
	}
}
