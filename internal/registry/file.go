package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileEntry is one provider in a registry file. Secrets are never written
// in the file itself, only the names of the variables holding them.
type fileEntry struct {
	Name            string `yaml:"name"`
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
	Scope           string `yaml:"scope"`
	AuthURL         string `yaml:"auth_url"`
	TokenURL        string `yaml:"token_url"`
	UserURL         string `yaml:"user_url"`
}

type fileFormat struct {
	Providers []fileEntry `yaml:"providers"`
}

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadFile reads provider descriptors from a YAML file:
//
//	providers:
//	  - name: github
//	    client_id_env: GITHUB_ID
//	    client_secret_env: GITHUB_SECRET
//	    scope: "read:user"
//
// Variables that are unset resolve to empty strings.
func LoadFile(path string, lookup LookupFunc) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider file: %w", err)
	}
	return Parse(data, lookup)
}

// Parse decodes a provider registry document. See LoadFile.
func Parse(data []byte, lookup LookupFunc) ([]Descriptor, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse provider file: %w", err)
	}
	if len(doc.Providers) == 0 {
		return nil, fmt.Errorf("%w: provider file lists no providers", ErrInvalidDescriptor)
	}

	descs := make([]Descriptor, 0, len(doc.Providers))
	for _, e := range doc.Providers {
		descs = append(descs, Descriptor{
			Name:         e.Name,
			ClientID:     envOrEmpty(lookup, e.ClientIDEnv),
			ClientSecret: envOrEmpty(lookup, e.ClientSecretEnv),
			Scope:        e.Scope,
			AuthURL:      e.AuthURL,
			TokenURL:     e.TokenURL,
			UserURL:      e.UserURL,
		})
	}
	return descs, nil
}

func envOrEmpty(lookup LookupFunc, key string) string {
	if key == "" {
		return ""
	}
	v, _ := lookup(key)
	return v
}
