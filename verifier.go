package ldapauth

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/dirauth/ldapauth/internal/directory"
	"github.com/dirauth/ldapauth/internal/filter"
)

// verifier holds the state one verification call needs, captured at
// configure time. A reconfigure swaps the whole verifier; in-flight
// calls keep the one they started with.
type verifier struct {
	opts *directory.Options
	tmpl *filter.Template
	base string
}

// verify answers whether the credentials identify a valid directory
// entry. It opens one session, optionally binds the service account,
// searches for candidate entries and tries to bind as each of them in
// server order until one accepts the password.
//
// A nil result with a nil error is the absence-signal. The session is
// closed on every path out of this function.
func (v *verifier) verify(ctx context.Context, dialer directory.Dialer, log logr.Logger, creds Credentials, sink ProgressSink) (*Result, error) {
	obs := progress{sink}

	// Missing input is a caller guard, not an error, and must not
	// touch the network.
	if creds.Username == "" || creds.Password == "" {
		obs.outcome(nil)
		return nil, nil
	}

	obs.step("connecting to %s", v.opts.ServerURL)
	session, err := directory.Open(ctx, v.opts, dialer, log)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if v.opts.HasServiceCredentials() {
		obs.step("authenticating service account")
		// A rejected service bind is a misconfiguration, not a failed
		// login; it propagates.
		if err := session.BindService(); err != nil {
			return nil, err
		}
	}

	rendered, err := v.tmpl.Render(map[string]string{"name": creds.Username})
	if err != nil {
		return nil, err
	}

	obs.step("searching %s for %s", v.base, rendered)
	entries, err := session.Search(v.base, rendered, nil)
	if err != nil {
		return nil, err
	}
	obs.step("search returned %d entries", len(entries))

	// Candidate entries are tried strictly in the order the server
	// returned them; the first one whose password matches wins.
	for i, entry := range entries {
		obs.entry(entry.DN, i+1, len(entries))

		err := session.Bind(entry.DN, creds.Password)
		if err == nil {
			log.V(1).Info("bind accepted", "dn", entry.DN, "username", creds.Username)
			result := &Result{
				Username:   creds.Username,
				DN:         entry.DN,
				Attributes: entry.Attributes,
			}
			obs.outcome(result)
			return result, nil
		}

		if directory.IsBindRejected(err) {
			log.V(1).Info("bind rejected", "dn", entry.DN, "username", creds.Username)
			obs.step("entry %s rejected the password", entry.DN)
			continue
		}

		// Transport failure mid-loop: no point trying further entries
		// on a dead session.
		return nil, err
	}

	obs.outcome(nil)
	return nil, nil
}
