package callbacks

import (
	"context"
	"fmt"
	"strings"

	"github.com/authdoc/internal/config"
)

// Allowlist admits identities whose provider login (or, without a profile,
// identity name) is in users. Matching is case-insensitive since GitHub
// logins are. Rejected identities are redirected to deniedPath when it is
// set and denied otherwise. An empty list rejects everyone.
func Allowlist(users []string, deniedPath string) SignInFunc {
	allowed := make(map[string]struct{}, len(users))
	for _, u := range users {
		u = strings.ToLower(strings.TrimSpace(u))
		if u != "" {
			allowed[u] = struct{}{}
		}
	}

	reject := Deny()
	if deniedPath != "" {
		reject = RedirectTo(deniedPath)
	}

	return func(_ context.Context, in SignInParams) (SignInResult, error) {
		name := ""
		switch {
		case in.Profile != nil && in.Profile.Login != "":
			name = in.Profile.Login
		case in.Identity != nil:
			name = in.Identity.Name
		}
		if name == "" {
			return reject, nil
		}
		if _, ok := allowed[strings.ToLower(name)]; ok {
			return Allow(), nil
		}
		return reject, nil
	}
}

// PolicyFromConfig returns the sign-in hook selected by configuration.
// A nil hook means the default, which admits everyone.
func PolicyFromConfig(cfg config.SignInConfig) (SignInFunc, error) {
	switch cfg.Policy {
	case "", config.PolicyAllowAll:
		return nil, nil
	case config.PolicyAllowlist:
		return Allowlist(cfg.AllowedUsers, cfg.DeniedPath), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidPolicy, cfg.Policy)
	}
}
