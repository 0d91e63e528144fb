package callbacks

import "time"

// IdentityClaim is the normalized identity produced by a provider for one
// sign-in attempt.
type IdentityClaim struct {
	ID    string
	Name  string
	Email string
	Image string
}

// ProviderAccount references the provider-side account and the credential
// issued by the provider during the handshake.
type ProviderAccount struct {
	Provider          string // e.g. "github"
	Type              string // "oauth"
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	TokenType         string
	ExpiresAt         time.Time
}

// ProviderProfile is the raw profile payload returned by the provider's user endpoint.
type ProviderProfile struct {
	ID        string
	Login     string
	Name      string
	Email     string
	AvatarURL string
}

// SessionToken is the payload of the signed session token as seen by hooks.
// AccessToken is carried forward unchanged across refreshes once set.
type SessionToken struct {
	Subject     string
	Name        string
	Email       string
	Picture     string
	AccessToken string
}

// SessionUser is the user portion of a SessionView.
type SessionUser struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// SessionView is the client-facing projection of a SessionToken.
// AccessToken is the only provider credential a view may carry.
type SessionView struct {
	User        SessionUser `json:"user"`
	Expires     time.Time   `json:"expires"`
	AccessToken string      `json:"accessToken,omitempty"`
}

type signInOutcome int

const (
	outcomeDeny signInOutcome = iota
	outcomeAllow
	outcomeRedirect
)

// SignInResult is the decision returned by the sign-in hook: allow, deny,
// or redirect the client to a path instead of completing sign-in.
type SignInResult struct {
	outcome signInOutcome
	path    string
}

// Allow permits the sign-in.
func Allow() SignInResult { return SignInResult{outcome: outcomeAllow} }

// Deny rejects the sign-in.
func Deny() SignInResult { return SignInResult{outcome: outcomeDeny} }

// RedirectTo sends the client to path instead of completing sign-in.
func RedirectTo(path string) SignInResult {
	return SignInResult{outcome: outcomeRedirect, path: path}
}

// Allowed reports whether sign-in may complete.
func (r SignInResult) Allowed() bool { return r.outcome == outcomeAllow }

// Redirect returns the redirect path and true when the result is a redirect.
func (r SignInResult) Redirect() (string, bool) {
	return r.path, r.outcome == outcomeRedirect
}

func (r SignInResult) String() string {
	switch r.outcome {
	case outcomeAllow:
		return "allow"
	case outcomeRedirect:
		return "redirect:" + r.path
	default:
		return "deny"
	}
}

// SignInParams are supplied by the engine on every sign-in attempt.
// None of them are validated by the pipeline; any may be nil.
type SignInParams struct {
	Identity *IdentityClaim
	Account  *ProviderAccount
	Profile  *ProviderProfile
}

// JWTParams are supplied on every token mint or refresh. Only Token is
// always present; the rest are populated on the sign-in invocation only.
type JWTParams struct {
	Token     SessionToken
	Identity  *IdentityClaim
	Account   *ProviderAccount
	Profile   *ProviderProfile
	IsNewUser *bool
}
