package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/authdoc/internal/config"
	"github.com/authdoc/internal/validation"
)

var (
	// ErrProviderNotFound is returned when looking up a provider that isn't registered
	ErrProviderNotFound = errors.New("oauth provider not found")

	// ErrDuplicateProvider is returned when two descriptors share a name
	ErrDuplicateProvider = errors.New("oauth provider already registered")

	// ErrInvalidDescriptor is returned for descriptors that cannot be registered
	ErrInvalidDescriptor = errors.New("invalid provider descriptor")
)

// GitHub is the provider name used for the environment-configured provider.
const GitHub = "github"

// Descriptor describes one external identity provider.
//
// Credentials are never validated here. Empty values are registered as-is
// and the provider rejects the handshake when they are wrong.
type Descriptor struct {
	Name         string
	ClientID     string
	ClientSecret string
	Scope        string // as configured, space or comma separated

	// Optional endpoint overrides (GitHub Enterprise, tests).
	AuthURL  string
	TokenURL string
	UserURL  string
}

// Scopes splits Scope into individual scopes.
func (d Descriptor) Scopes() []string {
	fields := strings.FieldsFunc(d.Scope, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Registry is the immutable set of configured providers.
//
// Usage:
//
//	reg, err := registry.New(registry.FromConfig(cfg))
//	desc, err := reg.Get("github")
type Registry struct {
	order     []string
	providers map[string]Descriptor
}

// New builds a registry from descriptors, in order.
// Names must be unique valid route segments and endpoint overrides absolute URLs.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		order:     make([]string, 0, len(descs)),
		providers: make(map[string]Descriptor, len(descs)),
	}

	for _, d := range descs {
		d.Name = strings.ToLower(strings.TrimSpace(d.Name))
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
		}
		if err := validation.ValidateProviderName(d.Name); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.Name, err)
		}
		for _, endpoint := range []string{d.AuthURL, d.TokenURL, d.UserURL} {
			if endpoint == "" {
				continue
			}
			if err := validation.ValidateEndpointURL(endpoint); err != nil {
				return nil, fmt.Errorf("%w: %s: %s: %v", ErrInvalidDescriptor, d.Name, endpoint, err)
			}
		}
		if _, exists := r.providers[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, d.Name)
		}
		r.order = append(r.order, d.Name)
		r.providers[d.Name] = d
	}

	return r, nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, error) {
	d, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return d, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.order)
}

// FromConfig builds the GitHub descriptor from environment configuration.
func FromConfig(cfg *config.Config) Descriptor {
	return Descriptor{
		Name:         GitHub,
		ClientID:     cfg.Auth.GitHub.ClientID,
		ClientSecret: cfg.Auth.GitHub.ClientSecret,
		Scope:        cfg.Auth.GitHub.Scope,
	}
}
