package ldapauth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/dirauth/ldapauth/internal/directory"
)

// BindConfig identifies the service account used for the initial
// privileged bind. When absent, searches run anonymously.
type BindConfig struct {
	DN       string `json:"dn" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// KerberosConfig selects GSSAPI service authentication instead of a
// simple service bind.
type KerberosConfig struct {
	Realm     string `json:"realm" validate:"required"`
	Principal string `json:"principal" validate:"required"`
	Keytab    string `json:"keytab" validate:"required"`
	Config    string `json:"config,omitempty"`
	SPN       string `json:"spn,omitempty"`
}

// Config is the JSON-shaped provider configuration.
type Config struct {
	// URI is the ldap:// or ldaps:// URL of the directory server.
	URI string `json:"uri" validate:"required"`

	// CertificateAuthorities lists PEM files to trust when verifying
	// the server certificate. Each file is read fully at configure
	// time; a read failure is fatal.
	CertificateAuthorities []string `json:"certificateAuthorities,omitempty"`

	// CheckCertificate enables server certificate verification.
	// Defaults to true.
	CheckCertificate *bool `json:"checkCertificate,omitempty" default:"true"`

	// StartTLS upgrades an ldap:// connection to TLS after connecting.
	StartTLS bool `json:"startTLS,omitempty"`

	// Bind configures simple service-account authentication.
	Bind *BindConfig `json:"bind,omitempty"`

	// Kerberos configures GSSAPI service authentication. Mutually
	// exclusive with Bind.
	Kerberos *KerberosConfig `json:"kerberos,omitempty"`

	// Base is the DN the user search starts from.
	Base string `json:"base" validate:"required"`

	// Filter is the search filter template; {{name}} is replaced with
	// the escaped username.
	Filter string `json:"filter,omitempty" default:"(uid={{name}})"`

	// MaxConnections caps concurrently open connections.
	MaxConnections int `json:"maxConnections,omitempty" default:"5"`

	// TimeoutSeconds bounds dialing and each directory operation.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" default:"30"`
}

var configValidator = validator.New()

// Validate applies defaults and checks the structural invariants:
// uri and base present, bind complete when given, a supported URL
// scheme, sane limits.
func (c *Config) Validate() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to set default values: %w", err)
	}

	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	parsed, err := url.Parse(c.URI)
	if err != nil {
		return fmt.Errorf("invalid uri %q: %w", c.URI, err)
	}
	if parsed.Scheme != "ldap" && parsed.Scheme != "ldaps" {
		return fmt.Errorf("unsupported uri scheme %q, must be ldap:// or ldaps://", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("uri %q has no host", c.URI)
	}

	if c.Bind != nil && c.Kerberos != nil {
		return fmt.Errorf("bind and kerberos are mutually exclusive")
	}

	if c.MaxConnections <= 0 || c.MaxConnections > directory.MaxConnectionLimit {
		return fmt.Errorf("maxConnections must be between 1 and %d", directory.MaxConnectionLimit)
	}

	return nil
}

// connectionOptions derives the immutable per-configuration connection
// options. Pure beyond reading the CA files; it does not open a
// connection.
func (c *Config) connectionOptions() (*directory.Options, error) {
	parsed, err := url.Parse(c.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid uri %q: %w", c.URI, err)
	}

	tlsConfig, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}

	opts := &directory.Options{
		ServerURL: c.URI,
		Scheme:    parsed.Scheme,
		StartTLS:  c.StartTLS,
		TLSConfig: tlsConfig,
		Timeout:   time.Duration(c.TimeoutSeconds) * time.Second,
	}

	if c.Bind != nil {
		opts.BindDN = c.Bind.DN
		opts.BindPassword = c.Bind.Password
	}
	if c.Kerberos != nil {
		opts.Kerberos = &directory.KerberosOptions{
			Realm:     c.Kerberos.Realm,
			Principal: c.Kerberos.Principal,
			Keytab:    c.Kerberos.Keytab,
			Config:    c.Kerberos.Config,
			SPN:       c.Kerberos.SPN,
		}
	}

	return opts, nil
}

// tlsConfig builds the trust settings. CA files are read fully into
// memory here; any read or parse failure aborts configuration rather
// than leaving a partial trust store.
func (c *Config) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !c.checkCertificate(),
	}

	if len(c.CertificateAuthorities) == 0 {
		return tlsConfig, nil
	}

	rootCAs := x509.NewCertPool()
	for _, path := range c.CertificateAuthorities {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate authority %q: %w", path, err)
		}
		if !rootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %q", path)
		}
	}
	tlsConfig.RootCAs = rootCAs

	return tlsConfig, nil
}

func (c *Config) checkCertificate() bool {
	return c.CheckCertificate == nil || *c.CheckCertificate
}
