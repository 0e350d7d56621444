package directory

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// KerberosOptions configures GSSAPI service authentication as an
// alternative to a simple service bind.
type KerberosOptions struct {
	// Realm is the Kerberos realm, e.g. "EXAMPLE.COM".
	Realm string

	// Principal is the service principal to authenticate as.
	Principal string

	// Keytab is the path to the keytab holding the principal's keys.
	Keytab string

	// Config is the path to krb5.conf; defaults to /etc/krb5.conf.
	Config string

	// SPN overrides the automatic "ldap/<host>" service principal
	// name of the directory server.
	SPN string
}

// bindKerberos performs a GSSAPI bind as the configured service
// principal.
func (s *Session) bindKerberos() error {
	opts := s.opts.Kerberos

	if err := validateKerberosOptions(opts); err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	krb5conf := opts.Config
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}

	client, err := gssapi.NewClientWithKeytab(
		opts.Principal, opts.Realm, opts.Keytab, krb5conf,
		krb5client.DisablePAFXFAST(true),
	)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	spn, err := servicePrincipalName(opts, s.opts.ServerURL)
	if err != nil {
		return err
	}

	return s.conn.GSSAPIBind(client, spn, "")
}

func validateKerberosOptions(opts *KerberosOptions) error {
	if opts.Realm == "" {
		return fmt.Errorf("realm is required")
	}
	if opts.Principal == "" {
		return fmt.Errorf("principal is required")
	}
	if opts.Keytab == "" {
		return fmt.Errorf("keytab is required")
	}
	if _, err := os.Stat(opts.Keytab); err != nil {
		return fmt.Errorf("keytab not readable: %w", err)
	}
	return nil
}

// servicePrincipalName builds the "ldap/<host>" SPN of the directory
// server unless an explicit override is configured.
func servicePrincipalName(opts *KerberosOptions, serverURL string) (string, error) {
	if opts.SPN != "" {
		return opts.SPN, nil
	}

	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("cannot derive service principal from server URL: %w", err)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		// URL parsing can leave bare host:port in the opaque part.
		hostname = strings.SplitN(parsed.Opaque, ":", 2)[0]
	}
	if hostname == "" {
		return "", fmt.Errorf("no hostname in server URL %q", serverURL)
	}

	return fmt.Sprintf("ldap/%s", hostname), nil
}
