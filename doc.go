/*
Package ldapauth verifies credentials against an LDAP directory server
using the two-phase bind/search/bind pattern.

# Overview

Each verification call opens one short-lived connection, optionally
authenticates as a configured service account, searches for candidate
entries matching the username, and attempts to bind as each candidate
in server order until one accepts the password. The first match wins;
exhaustion yields a nil Result rather than an error, so "unknown user"
and "wrong password" remain indistinguishable to callers.

# Usage

	provider := ldapauth.NewProvider("corp-ldap")
	err := provider.Configure(&ldapauth.Config{
		URI:  "ldaps://ldap.example.com",
		Base: "dc=example,dc=com",
		Bind: &ldapauth.BindConfig{
			DN:       "cn=service,dc=example,dc=com",
			Password: "secret",
		},
		Filter: "(uid={{name}})",
	})
	if err != nil {
		// configuration is structurally invalid
	}

	result, err := provider.Authenticate(ctx, ldapauth.Credentials{
		Username: "alice",
		Password: "password",
	}, nil)

A nil result with a nil error means the credentials were not accepted.
A non-nil error reports an operational fault: transport or TLS failure,
a rejected service bind, a failed search, or a filter template
referencing an unknown variable.

# Registration

Providers plug into a host application through a Registry:

	registry := ldapauth.NewRegistry()
	provider.Load(registry)
	defer provider.Unload(registry)

# Security

Usernames are escaped before interpolation into the search filter, so
attacker-controlled input cannot widen the filter's match set.
Passwords are never logged and never reach a progress sink.
*/
package ldapauth
