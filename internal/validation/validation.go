package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// providerNameRegex allows only lowercase alphanumeric characters and hyphens.
	// Underscore separates the provider from the account id in user ids.
	providerNameRegex = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Names the auth engine routes itself under /auth and that cannot be providers
var reservedNames = map[string]bool{
	"login":    true,
	"logout":   true,
	"callback": true,
	"list":     true,
	"user":     true,
	"status":   true,
	"avatar":   true,
}

// ValidateProviderName validates a provider name, which becomes a route segment
func ValidateProviderName(name string) error {
	// Check length
	if len(name) < 1 {
		return errors.New("provider name cannot be empty")
	}
	if len(name) > 32 {
		return errors.New("provider name must be 32 characters or less")
	}

	// Check for reserved names
	if reservedNames[name] {
		return errors.New("provider name is reserved")
	}

	// Check against allowed character set
	if !providerNameRegex.MatchString(name) {
		return errors.New("provider name must contain only lowercase letters, numbers, and hyphens")
	}

	// Prevent names starting or ending with special characters
	if strings.HasPrefix(name, "-") {
		return errors.New("provider name cannot start with a hyphen")
	}
	if strings.HasSuffix(name, "-") {
		return errors.New("provider name cannot end with a hyphen")
	}

	return nil
}

// ValidateRedirectPath validates a site-relative redirect path such as "/denied"
func ValidateRedirectPath(path string) error {
	if path == "" {
		return errors.New("redirect path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return errors.New("redirect path must start with '/'")
	}
	// Protocol-relative URLs leave the site
	if strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\") {
		return errors.New("redirect path cannot start with '//'")
	}
	if strings.ContainsAny(path, "\r\n") {
		return errors.New("redirect path cannot contain line breaks")
	}
	return nil
}

// ValidateEndpointURL validates an absolute http(s) URL such as a base URL or provider endpoint
func ValidateEndpointURL(raw string) error {
	if raw == "" {
		return errors.New("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("URL is malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL must use http or https")
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("URL cannot include a query or fragment")
	}
	return nil
}
