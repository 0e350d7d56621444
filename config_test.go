package ldapauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_Defaults(t *testing.T) {
	cfg := &Config{
		URI:  "ldap://directory.example.com",
		Base: "dc=example,dc=com",
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "(uid={{name}})", cfg.Filter)
	assert.Equal(t, 5, cfg.MaxConnections)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	require.NotNil(t, cfg.CheckCertificate)
	assert.True(t, *cfg.CheckCertificate)
}

func TestConfig_Validate_Errors(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "missing uri",
			cfg:  Config{Base: "dc=example,dc=com"},
		},
		{
			name: "missing base",
			cfg:  Config{URI: "ldap://host"},
		},
		{
			name: "unsupported scheme",
			cfg:  Config{URI: "http://host", Base: "dc=example,dc=com"},
		},
		{
			name: "no host",
			cfg:  Config{URI: "ldap://", Base: "dc=example,dc=com"},
		},
		{
			name: "bind without password",
			cfg: Config{
				URI:  "ldap://host",
				Base: "dc=example,dc=com",
				Bind: &BindConfig{DN: "cn=svc,dc=example,dc=com"},
			},
		},
		{
			name: "bind and kerberos together",
			cfg: Config{
				URI:  "ldap://host",
				Base: "dc=example,dc=com",
				Bind: &BindConfig{DN: "cn=svc", Password: "p"},
				Kerberos: &KerberosConfig{
					Realm:     "EXAMPLE.COM",
					Principal: "svc",
					Keytab:    "/etc/svc.keytab",
				},
			},
		},
		{
			name: "incomplete kerberos",
			cfg: Config{
				URI:      "ldap://host",
				Base:     "dc=example,dc=com",
				Kerberos: &KerberosConfig{Realm: "EXAMPLE.COM"},
			},
		},
		{
			name: "maxConnections too high",
			cfg: Config{
				URI:            "ldap://host",
				Base:           "dc=example,dc=com",
				MaxConnections: 1000,
			},
		},
		{
			name: "negative maxConnections",
			cfg: Config{
				URI:              "ldap://host",
				Base:             "dc=example,dc=com",
				CheckCertificate: boolPtr(false),
				MaxConnections:   -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestConfig_ConnectionOptions(t *testing.T) {
	cfg := &Config{
		URI:      "ldaps://directory.example.com:636",
		Base:     "dc=example,dc=com",
		StartTLS: false,
		Bind:     &BindConfig{DN: "cn=svc,dc=example,dc=com", Password: "hunter2"},
	}
	require.NoError(t, cfg.Validate())

	opts, err := cfg.connectionOptions()
	require.NoError(t, err)

	assert.Equal(t, "ldaps://directory.example.com:636", opts.ServerURL)
	assert.Equal(t, "ldaps", opts.Scheme)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, "cn=svc,dc=example,dc=com", opts.BindDN)
	assert.Equal(t, "hunter2", opts.BindPassword)
	assert.Nil(t, opts.Kerberos)
	require.NotNil(t, opts.TLSConfig)
	assert.False(t, opts.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
}

func TestConfig_ConnectionOptions_SkipVerify(t *testing.T) {
	insecure := false
	cfg := &Config{
		URI:              "ldaps://host",
		Base:             "dc=example,dc=com",
		CheckCertificate: &insecure,
	}
	require.NoError(t, cfg.Validate())

	opts, err := cfg.connectionOptions()
	require.NoError(t, err)
	assert.True(t, opts.TLSConfig.InsecureSkipVerify)
}

func TestConfig_CertificateAuthorities(t *testing.T) {
	dir := t.TempDir()
	caPath := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(caPath, selfSignedPEM(t), 0o600))

	cfg := &Config{
		URI:                    "ldaps://host",
		Base:                   "dc=example,dc=com",
		CertificateAuthorities: []string{caPath},
	}
	require.NoError(t, cfg.Validate())

	opts, err := cfg.connectionOptions()
	require.NoError(t, err)
	assert.NotNil(t, opts.TLSConfig.RootCAs)
}

func TestConfig_CertificateAuthorities_Failures(t *testing.T) {
	dir := t.TempDir()
	junkPath := filepath.Join(dir, "junk.pem")
	require.NoError(t, os.WriteFile(junkPath, []byte("not a certificate"), 0o600))

	tests := []struct {
		name string
		path string
	}{
		{name: "unreadable file", path: filepath.Join(dir, "missing.pem")},
		{name: "no certificates in file", path: junkPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				URI:                    "ldaps://host",
				Base:                   "dc=example,dc=com",
				CertificateAuthorities: []string{tt.path},
			}
			require.NoError(t, cfg.Validate())

			_, err := cfg.connectionOptions()
			assert.Error(t, err)
		})
	}
}

func selfSignedPEM(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
