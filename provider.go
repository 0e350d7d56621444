package ldapauth

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/dirauth/ldapauth/internal/directory"
	"github.com/dirauth/ldapauth/internal/filter"
)

// Provider verifies credentials against a directory server. It owns
// the resolved connection options across calls and can be registered
// with a host application's Registry.
//
// Configure must be called before Authenticate or Test. It is safe to
// call Configure again to hot-swap the configuration: new calls use
// the new settings, in-flight calls finish with the settings they
// started with.
type Provider struct {
	name   string
	logger logr.Logger
	dialer directory.Dialer

	mu      sync.RWMutex
	current *verifier
	limiter *directory.Limiter
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger logr.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithDialer replaces the production network dialer, primarily for
// tests.
func WithDialer(dialer Dialer) ProviderOption {
	return func(p *Provider) {
		p.dialer = dialer
	}
}

// NewProvider creates an unconfigured provider. The name is the key
// used when registering with a Registry.
func NewProvider(name string, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:   name,
		logger: logr.Discard(),
		dialer: directory.NewDialer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider's registry name.
func (p *Provider) Name() string {
	return p.name
}

// Configure validates cfg, derives the connection options, reads the
// CA trust material and swaps the provider state. It does not open a
// connection.
func (p *Provider) Configure(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := cfg.connectionOptions()
	if err != nil {
		return err
	}

	limiter, err := directory.NewLimiter(cfg.MaxConnections)
	if err != nil {
		return err
	}
	opts.Limiter = limiter

	v := &verifier{
		opts: opts,
		tmpl: filter.Parse(cfg.Filter),
		base: cfg.Base,
	}

	p.mu.Lock()
	p.current = v
	p.limiter = limiter
	p.mu.Unlock()

	p.logger.Info("provider configured",
		"name", p.name,
		"server", opts.ServerURL,
		"base", cfg.Base,
		"filter", cfg.Filter,
		"max_connections", cfg.MaxConnections,
		"service_auth", opts.HasServiceCredentials())

	return nil
}

// Authenticate answers whether the credentials identify a valid
// directory entry. A nil result with nil error means not
// authenticated; an error means the verification itself failed.
func (p *Provider) Authenticate(ctx context.Context, creds Credentials, sink ProgressSink) (*Result, error) {
	p.mu.RLock()
	v := p.current
	p.mu.RUnlock()

	if v == nil {
		return nil, ErrNotConfigured
	}

	return v.verify(ctx, p.dialer, p.logger.WithValues("username", creds.Username), creds, sink)
}

// Test demands a definite yes: it runs Authenticate and converts the
// absence-signal into ErrAuthenticationFailed. Operational failures
// pass through unchanged.
func (p *Provider) Test(ctx context.Context, creds Credentials) error {
	result, err := p.Authenticate(ctx, creds, nil)
	if err != nil {
		return err
	}
	if result == nil {
		return ErrAuthenticationFailed
	}
	return nil
}

// Load registers the provider's authenticate function with the host's
// registry. Idempotent; no directory activity.
func (p *Provider) Load(registry *Registry) {
	registry.Register(p.name, p.Authenticate)
}

// Unload removes the provider from the host's registry. Idempotent;
// no directory activity.
func (p *Provider) Unload(registry *Registry) {
	registry.Deregister(p.name)
}

// Close releases the provider's connection limiter. In-flight calls
// may still release their slots safely.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limiter != nil {
		return p.limiter.Close()
	}
	return nil
}
