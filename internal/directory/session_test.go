package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	bindCalls   [][2]string
	searchCalls []*ldap.SearchRequest
	closeCalls  int

	bindErr      func(username, password string) error
	searchResult *ldap.SearchResult
	searchErr    error
}

func (c *fakeConn) Bind(username, password string) error {
	c.bindCalls = append(c.bindCalls, [2]string{username, password})
	if c.bindErr != nil {
		return c.bindErr(username, password)
	}
	return nil
}

func (c *fakeConn) GSSAPIBind(_ ldap.GSSAPIClient, _, _ string) error {
	return nil
}

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.searchCalls = append(c.searchCalls, req)
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	if c.searchResult != nil {
		return c.searchResult, nil
	}
	return &ldap.SearchResult{}, nil
}

func (c *fakeConn) Close() error {
	c.closeCalls++
	return nil
}

func fakeDialer(conn Conn, err error) Dialer {
	return DialerFunc(func(_ context.Context, _ *Options) (Conn, error) {
		return conn, err
	})
}

func TestOpen_DialFailureReleasesSlot(t *testing.T) {
	limiter, err := NewLimiter(1)
	require.NoError(t, err)

	opts := &Options{ServerURL: "ldap://host", Limiter: limiter}
	_, err = Open(context.Background(), opts, fakeDialer(nil, errors.New("refused")), logr.Discard())
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	// The slot must have been released on the failure path.
	assert.Equal(t, int64(0), limiter.Stats().InUse)
	require.NoError(t, limiter.Acquire(context.Background()))
}

func TestSession_BindService(t *testing.T) {
	tests := []struct {
		name     string
		opts     *Options
		bindErr  func(username, password string) error
		wantBind [][2]string
		wantErr  bool
	}{
		{
			name:     "simple service bind",
			opts:     &Options{BindDN: "cn=svc,dc=x", BindPassword: "p"},
			wantBind: [][2]string{{"cn=svc,dc=x", "p"}},
		},
		{
			name: "anonymous when no credentials",
			opts: &Options{},
		},
		{
			name: "rejected service bind is a connection error",
			opts: &Options{BindDN: "cn=svc,dc=x", BindPassword: "wrong"},
			bindErr: func(string, string) error {
				return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
			},
			wantBind: [][2]string{{"cn=svc,dc=x", "wrong"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{bindErr: tt.bindErr}
			session, err := Open(context.Background(), tt.opts, fakeDialer(conn, nil), logr.Discard())
			require.NoError(t, err)
			defer session.Close()

			err = session.BindService()
			if tt.wantErr {
				require.Error(t, err)
				// Even a credential rejection at this stage is fatal
				// for the session, not a recoverable bind rejection.
				assert.True(t, IsConnectionError(err))
				assert.False(t, IsBindRejected(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantBind, conn.bindCalls)
		})
	}
}

func TestSession_Bind_Classification(t *testing.T) {
	conn := &fakeConn{bindErr: func(username, _ string) error {
		switch username {
		case "uid=reject,dc=x":
			return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
		case "uid=dead,dc=x":
			return ldap.NewError(ldap.LDAPResultServerDown, errors.New("down"))
		}
		return nil
	}}

	session, err := Open(context.Background(), &Options{}, fakeDialer(conn, nil), logr.Discard())
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Bind("uid=ok,dc=x", "pw"))

	err = session.Bind("uid=reject,dc=x", "pw")
	assert.True(t, IsBindRejected(err))

	err = session.Bind("uid=dead,dc=x", "pw")
	assert.True(t, IsConnectionError(err))
}

func TestSession_Search(t *testing.T) {
	conn := &fakeConn{
		searchResult: &ldap.SearchResult{
			Entries: []*ldap.Entry{
				ldap.NewEntry("uid=a,dc=x", map[string][]string{"uid": {"a"}}),
				ldap.NewEntry("uid=b,dc=x", map[string][]string{"uid": {"b"}}),
			},
		},
	}

	session, err := Open(context.Background(), &Options{}, fakeDialer(conn, nil), logr.Discard())
	require.NoError(t, err)
	defer session.Close()

	entries, err := session.Search("dc=x", "(uid=a*)", nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Server order is preserved.
	assert.Equal(t, "uid=a,dc=x", entries[0].DN)
	assert.Equal(t, "uid=b,dc=x", entries[1].DN)

	require.Len(t, conn.searchCalls, 1)
	req := conn.searchCalls[0]
	assert.Equal(t, "dc=x", req.BaseDN)
	assert.Equal(t, "(uid=a*)", req.Filter)
	assert.Equal(t, ldap.ScopeWholeSubtree, req.Scope)
	assert.Equal(t, 0, req.SizeLimit)
}

func TestSession_Search_Failure(t *testing.T) {
	conn := &fakeConn{
		searchErr: ldap.NewError(ldap.LDAPResultOperationsError, errors.New("operations error")),
	}

	session, err := Open(context.Background(), &Options{}, fakeDialer(conn, nil), logr.Discard())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Search("dc=x", "(uid=a)", nil)
	require.Error(t, err)
	assert.True(t, IsSearchFailed(err))
}

func TestSession_CloseExactlyOnce(t *testing.T) {
	limiter, err := NewLimiter(1)
	require.NoError(t, err)

	conn := &fakeConn{}
	session, err := Open(context.Background(), &Options{Limiter: limiter}, fakeDialer(conn, nil), logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, int64(1), limiter.Stats().InUse)

	session.Close()
	session.Close()
	session.Close()

	assert.Equal(t, 1, conn.closeCalls)
	assert.Equal(t, int64(0), limiter.Stats().InUse)
}

func TestOptions_HasServiceCredentials(t *testing.T) {
	assert.False(t, (&Options{}).HasServiceCredentials())
	assert.True(t, (&Options{BindDN: "cn=svc"}).HasServiceCredentials())
	assert.True(t, (&Options{Kerberos: &KerberosOptions{}}).HasServiceCredentials())
}
