package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorKind classifies a directory operation failure.
type ErrorKind string

const (
	// KindConnection covers transport and TLS failures, service-bind
	// rejections and anything else that invalidates the session.
	KindConnection ErrorKind = "connection"

	// KindSearch covers a non-success status from the search operation.
	KindSearch ErrorKind = "search"

	// KindBindRejected covers a recoverable per-entry bind rejection:
	// the server answered, the password was wrong.
	KindBindRejected ErrorKind = "bind_rejected"
)

// Error provides structured information about a failed directory
// operation.
type Error struct {
	Kind      ErrorKind
	Op        string // the operation that failed: "dial", "bind", "search", ...
	DN        string // DN involved, if applicable
	LDAPCode  uint16 // LDAP result code, 0 when not protocol-level
	ServerMsg string // server-provided diagnostic
	Cause     error
}

func (e *Error) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("directory %s failed (code %d)", e.Op, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("directory %s failed", e.Op))
	}

	if e.ServerMsg != "" {
		parts = append(parts, fmt.Sprintf("server: %s", e.ServerMsg))
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	if e.Cause != nil && e.LDAPCode == 0 {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " - ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewConnectionError wraps a transport-level failure.
func NewConnectionError(op string, cause error) *Error {
	e := &Error{Kind: KindConnection, Op: op, Cause: cause}
	fillProtocolDetails(e, cause)
	return e
}

// NewSearchError wraps a non-success search status.
func NewSearchError(cause error) *Error {
	e := &Error{Kind: KindSearch, Op: "search", Cause: cause}
	fillProtocolDetails(e, cause)
	return e
}

// classifyBindError turns a bind failure into either a recoverable
// rejection or a fatal connection error. Only result codes that mean
// "the server saw the credentials and said no" count as rejections;
// everything else indicates the session itself is unusable.
func classifyBindError(dn string, cause error) *Error {
	kind := KindConnection
	if isCredentialRejection(cause) {
		kind = KindBindRejected
	}
	e := &Error{Kind: kind, Op: "bind", DN: dn, Cause: cause}
	fillProtocolDetails(e, cause)
	return e
}

func isCredentialRejection(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultInappropriateAuthentication) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultStrongAuthRequired)
}

func fillProtocolDetails(e *Error, cause error) {
	var ldapErr *ldap.Error
	if errors.As(cause, &ldapErr) {
		e.LDAPCode = ldapErr.ResultCode
		if ldapErr.Err != nil {
			e.ServerMsg = ldapErr.Err.Error()
		}
	}
}

// IsBindRejected reports whether err is a recoverable per-entry bind
// rejection.
func IsBindRejected(err error) bool {
	return kindOf(err) == KindBindRejected
}

// IsConnectionError reports whether err is a fatal transport or
// session-level failure.
func IsConnectionError(err error) bool {
	return kindOf(err) == KindConnection
}

// IsSearchFailed reports whether err is a failed search status.
func IsSearchFailed(err error) bool {
	return kindOf(err) == KindSearch
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
