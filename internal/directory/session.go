// Package directory manages short-lived connections to an LDAP
// directory server: one session per logical operation, opened, used
// sequentially (service bind, search, per-entry binds) and torn down
// exactly once.
package directory

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-logr/logr"
)

// Options carries everything a session needs to reach the server.
// Built once per configuration and shared read-only by all sessions.
type Options struct {
	// ServerURL is the full ldap:// or ldaps:// URL of the server.
	ServerURL string

	// Scheme is the URL scheme, "ldap" or "ldaps".
	Scheme string

	// StartTLS upgrades an ldap:// connection to TLS after connecting.
	StartTLS bool

	// TLSConfig holds trust settings for ldaps:// and StartTLS
	// connections. Nil means library defaults.
	TLSConfig *tls.Config

	// Timeout bounds dialing and each directory operation.
	Timeout time.Duration

	// BindDN and BindPassword identify the service account used for
	// the initial privileged bind. Both empty means searches run
	// anonymously.
	BindDN       string
	BindPassword string

	// Kerberos, when set, replaces the simple service bind with a
	// GSSAPI bind. Mutually exclusive with BindDN/BindPassword.
	Kerberos *KerberosOptions

	// Limiter caps concurrently open connections. Nil means no cap.
	Limiter *Limiter
}

// HasServiceCredentials reports whether a privileged service
// authentication step is configured.
func (o *Options) HasServiceCredentials() bool {
	return o.BindDN != "" || o.Kerberos != nil
}

// Session owns exactly one connection for one logical operation. It is
// never reused: open, bind, search, per-entry binds, close.
type Session struct {
	conn Conn
	opts *Options
	log  logr.Logger

	closeOnce sync.Once
}

// Open acquires a connection slot, dials the server and returns a
// ready session. Every error is a connection error; the slot is
// released before returning one.
func Open(ctx context.Context, opts *Options, dialer Dialer, log logr.Logger) (*Session, error) {
	if opts.Limiter != nil {
		if err := opts.Limiter.Acquire(ctx); err != nil {
			return nil, NewConnectionError("acquire", err)
		}
	}

	start := time.Now()
	conn, err := dialer.Dial(ctx, opts)
	if err != nil {
		if opts.Limiter != nil {
			opts.Limiter.Release()
		}
		log.Error(err, "failed to connect to directory server", "server", opts.ServerURL)
		return nil, NewConnectionError("dial", err)
	}

	log.V(1).Info("connected to directory server",
		"server", opts.ServerURL,
		"duration_ms", time.Since(start).Milliseconds())

	return &Session{conn: conn, opts: opts, log: log}, nil
}

// BindService authenticates the connection as the configured service
// account, or does nothing when none is configured. Any failure here,
// including a credential rejection, is a connection error: the session
// cannot proceed to search.
func (s *Session) BindService() error {
	switch {
	case s.opts.Kerberos != nil:
		if err := s.bindKerberos(); err != nil {
			s.log.Error(err, "service authentication failed", "method", "kerberos")
			return NewConnectionError("service bind", err)
		}
		s.log.V(1).Info("service authentication succeeded", "method", "kerberos")
	case s.opts.BindDN != "":
		if err := s.conn.Bind(s.opts.BindDN, s.opts.BindPassword); err != nil {
			s.log.Error(err, "service bind failed", "bind_dn", s.opts.BindDN)
			return NewConnectionError("service bind", err)
		}
		s.log.V(1).Info("service bind succeeded", "bind_dn", s.opts.BindDN)
	default:
		// Anonymous search.
	}
	return nil
}

// Bind attempts to authenticate the connection as dn. A rejection by
// the server is recoverable for the caller; a transport failure is
// not.
func (s *Session) Bind(dn, password string) error {
	if err := s.conn.Bind(dn, password); err != nil {
		return classifyBindError(dn, err)
	}
	return nil
}

// Search runs a whole-subtree search under base and drains the full,
// finite result. A non-success status is fatal even if entries were
// already produced.
func (s *Session) Search(base, searchFilter string, attributes []string) ([]*Entry, error) {
	timeLimit := int(s.opts.Timeout.Seconds())
	if timeLimit <= 0 {
		timeLimit = int(DefaultTimeout.Seconds())
	}

	req := ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.DerefAlways,
		0, // no size limit: every candidate entry must be seen
		timeLimit,
		false,
		searchFilter,
		attributes,
		nil,
	)

	start := time.Now()
	result, err := s.conn.Search(req)
	if err != nil {
		s.log.Error(err, "search failed", "base", base, "filter", searchFilter)
		return nil, NewSearchError(err)
	}

	entries := make([]*Entry, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, WrapEntry(e))
	}

	s.log.V(1).Info("search completed",
		"base", base,
		"filter", searchFilter,
		"entries_found", len(entries),
		"duration_ms", time.Since(start).Milliseconds())

	return entries, nil
}

// Close releases the connection and its limiter slot. Safe to call
// more than once; the release happens exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
		if s.opts.Limiter != nil {
			s.opts.Limiter.Release()
		}
		s.log.V(1).Info("session closed", "server", s.opts.ServerURL)
	})
}
