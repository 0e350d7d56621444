package directory

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn abstracts the subset of the wire protocol a session needs. It is
// satisfied by *ldap.Conn and by fakes in tests.
type Conn interface {
	Bind(username, password string) error

	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzID string) error

	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)

	Close() error
}

var _ Conn = &ldap.Conn{}

// Dialer produces the Conn a session runs on. The production dialer
// speaks TCP/TLS; tests substitute recorded fakes.
type Dialer interface {
	Dial(ctx context.Context, opts *Options) (Conn, error)
}

// DialerFunc adapts a func to the Dialer interface.
type DialerFunc func(ctx context.Context, opts *Options) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, opts *Options) (Conn, error) {
	return f(ctx, opts)
}

// netDialer is the production Dialer.
type netDialer struct{}

// NewDialer returns the production dialer. ldaps:// URLs connect over
// TLS directly; ldap:// URLs connect in the clear and upgrade with
// StartTLS when the options ask for it.
func NewDialer() Dialer {
	return netDialer{}
}

func (netDialer) Dial(_ context.Context, opts *Options) (Conn, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialOpts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: timeout}),
	}
	if opts.tlsDirect() {
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(opts.TLSConfig))
	}

	conn, err := ldap.DialURL(opts.ServerURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(timeout)

	if opts.StartTLS && !opts.tlsDirect() {
		if err := conn.StartTLS(opts.startTLSConfig()); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// DefaultTimeout bounds dialing and every directory operation on a
// session when the options do not specify one.
const DefaultTimeout = 30 * time.Second

func (o *Options) tlsDirect() bool {
	return o.Scheme == "ldaps"
}

func (o *Options) startTLSConfig() *tls.Config {
	if o.TLSConfig != nil {
		return o.TLSConfig
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}
