package callbacks

import (
	"context"
	"log/slog"
	"strings"
)

// Diagnostic messages written once per hook invocation.
const (
	MsgSignIn   = "signIn!"
	MsgRedirect = "redirect!"
	MsgJWT      = "jwt!"
	MsgSession  = "session!"
)

// SignInFunc decides whether an identity may complete sign-in.
type SignInFunc func(ctx context.Context, in SignInParams) (SignInResult, error)

// RedirectFunc resolves the URL the client is sent to.
type RedirectFunc func(ctx context.Context, target, baseURL string) (string, error)

// JWTFunc enriches the session token on every mint or refresh.
type JWTFunc func(ctx context.Context, in JWTParams) (SessionToken, error)

// SessionFunc projects the session token into the client-facing view.
type SessionFunc func(ctx context.Context, view SessionView, tok SessionToken) (SessionView, error)

// Callbacks holds optional overrides. Nil fields use the defaults.
type Callbacks struct {
	SignIn   SignInFunc
	Redirect RedirectFunc
	JWT      JWTFunc
	Session  SessionFunc
}

// Pipeline is the set of hooks the authentication engine invokes at fixed
// points of its flow. It keeps no state between invocations.
type Pipeline struct {
	log *slog.Logger
	cb  Callbacks
}

// New builds a pipeline, filling unset callbacks with the defaults.
func New(log *slog.Logger, cb Callbacks) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cb.SignIn == nil {
		cb.SignIn = AllowAll
	}
	if cb.Redirect == nil {
		cb.Redirect = PrefixRedirect
	}
	if cb.JWT == nil {
		cb.JWT = CopyAccessToken
	}
	if cb.Session == nil {
		cb.Session = ProjectAccessToken
	}
	return &Pipeline{log: log, cb: cb}
}

// SignIn runs the sign-in hook.
func (p *Pipeline) SignIn(ctx context.Context, in SignInParams) (SignInResult, error) {
	p.log.InfoContext(ctx, MsgSignIn)
	return p.cb.SignIn(ctx, in)
}

// Redirect runs the redirect hook.
func (p *Pipeline) Redirect(ctx context.Context, target, baseURL string) (string, error) {
	p.log.InfoContext(ctx, MsgRedirect)
	return p.cb.Redirect(ctx, target, baseURL)
}

// JWT runs the token enrichment hook.
func (p *Pipeline) JWT(ctx context.Context, in JWTParams) (SessionToken, error) {
	p.log.InfoContext(ctx, MsgJWT)
	return p.cb.JWT(ctx, in)
}

// Session runs the session projection hook.
func (p *Pipeline) Session(ctx context.Context, view SessionView, tok SessionToken) (SessionView, error) {
	p.log.InfoContext(ctx, MsgSession)
	return p.cb.Session(ctx, view, tok)
}

// AllowAll admits every sign-in attempt regardless of input.
func AllowAll(context.Context, SignInParams) (SignInResult, error) {
	return Allow(), nil
}

// PrefixRedirect returns target when it starts with baseURL, otherwise baseURL.
func PrefixRedirect(_ context.Context, target, baseURL string) (string, error) {
	if strings.HasPrefix(target, baseURL) {
		return target, nil
	}
	return baseURL, nil
}

// CopyAccessToken attaches the provider access token on sign-in and leaves
// the token untouched on every other invocation.
func CopyAccessToken(_ context.Context, in JWTParams) (SessionToken, error) {
	tok := in.Token
	if in.Account != nil && in.Account.AccessToken != "" {
		tok.AccessToken = in.Account.AccessToken
	}
	return tok, nil
}

// ProjectAccessToken copies the token's access token onto the view.
func ProjectAccessToken(_ context.Context, view SessionView, tok SessionToken) (SessionView, error) {
	view.AccessToken = tok.AccessToken
	return view, nil
}
