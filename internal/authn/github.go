package authn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/authdoc/internal/apipaths"
	"github.com/authdoc/internal/callbacks"
	"github.com/authdoc/internal/registry"
	"github.com/go-pkgz/auth/provider"
	"github.com/go-pkgz/auth/token"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	defaultUserURL = "https://api.github.com/user"
	handshakeTTL   = 30 * time.Minute
	httpTimeout    = 10 * time.Second
	maxProfileBody = 1 << 20
)

var (
	errHandshake = errors.New("invalid handshake token")
	errProfile   = errors.New("failed to load provider profile")
)

// TokenService is the part of the engine's token service the provider uses.
type TokenService interface {
	Set(w http.ResponseWriter, claims token.Claims) (token.Claims, error)
	Get(r *http.Request) (token.Claims, string, error)
	Reset(w http.ResponseWriter)
}

// GitHubOpts configures a GitHub provider handler.
type GitHubOpts struct {
	BaseURL    string // application base URL, also the redirect guard base
	Tokens     TokenService
	Pipeline   *callbacks.Pipeline
	Hook       *TokenHook
	HTTPClient *http.Client // provider calls; defaults to a client with a timeout
	Logger     *slog.Logger
}

// GitHub is an OAuth2 GitHub provider for the authentication engine that runs
// the callback pipeline at each step of the sign-in flow.
type GitHub struct {
	name      string
	oauth     oauth2.Config
	userURL   string
	emailsURL string
	baseURL   string
	tokens    TokenService
	pipe      *callbacks.Pipeline
	hook      *TokenHook
	client    *http.Client
	log       *slog.Logger
	now       func() time.Time
}

var _ provider.Provider = (*GitHub)(nil)

// NewGitHub creates the provider handler for desc. Empty credentials are
// accepted; GitHub rejects the handshake in that case.
func NewGitHub(desc registry.Descriptor, opts GitHubOpts) *GitHub {
	endpoint := github.Endpoint
	if desc.AuthURL != "" {
		endpoint.AuthURL = desc.AuthURL
	}
	if desc.TokenURL != "" {
		endpoint.TokenURL = desc.TokenURL
	}
	userURL := defaultUserURL
	if desc.UserURL != "" {
		userURL = strings.TrimSuffix(desc.UserURL, "/")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")

	return &GitHub{
		name: desc.Name,
		oauth: oauth2.Config{
			ClientID:     desc.ClientID,
			ClientSecret: desc.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  baseURL + apipaths.ProviderCallback(desc.Name),
			Scopes:       desc.Scopes(),
		},
		userURL:   userURL,
		emailsURL: userURL + "/emails",
		baseURL:   baseURL,
		tokens:    opts.Tokens,
		pipe:      opts.Pipeline,
		hook:      opts.Hook,
		client:    client,
		log:       log.With("provider", desc.Name),
		now:       time.Now,
	}
}

// Name returns the provider name used in routes.
func (g *GitHub) Name() string { return g.name }

// LoginHandler stores the handshake in a short-lived cookie and sends the
// client to the provider's authorize page.
func (g *GitHub) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	now := g.now()

	claims := token.Claims{
		Handshake: &token.Handshake{
			State: state,
			From:  r.URL.Query().Get("from"),
		},
		SessionOnly: true,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			ExpiresAt: now.Add(handshakeTTL).Unix(),
			NotBefore: now.Add(-1 * time.Minute).Unix(),
		},
	}

	if _, err := g.tokens.Set(w, claims); err != nil {
		g.log.ErrorContext(r.Context(), "failed to set handshake token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start sign-in", "")
		return
	}

	http.Redirect(w, r, g.oauth.AuthCodeURL(state), http.StatusFound)
}

// AuthHandler handles the provider callback: verifies the handshake,
// exchanges the code, loads the profile and runs the callback pipeline.
func (g *GitHub) AuthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	handshake, err := g.handshake(r)
	if err != nil {
		g.log.WarnContext(ctx, "rejected callback", "error", err)
		writeError(w, http.StatusForbidden, "Invalid sign-in state", err.Error())
		return
	}

	if providerErr := q.Get("error"); providerErr != "" {
		g.log.WarnContext(ctx, "provider returned error", "error", providerErr, "description", q.Get("error_description"))
		g.tokens.Reset(w)
		writeError(w, http.StatusUnauthorized, "Sign-in was not completed", providerErr)
		return
	}

	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.Exchange(oauthCtx, q.Get("code"))
	if err != nil {
		g.log.ErrorContext(ctx, "code exchange failed", "error", err)
		g.tokens.Reset(w)
		writeError(w, http.StatusInternalServerError, "Failed to exchange authorization code", "")
		return
	}

	profile, err := g.fetchProfile(ctx, g.oauth.Client(oauthCtx, tok))
	if err != nil {
		g.log.ErrorContext(ctx, "profile fetch failed", "error", err)
		g.tokens.Reset(w)
		writeError(w, http.StatusInternalServerError, "Failed to load user profile", "")
		return
	}

	identity := &callbacks.IdentityClaim{
		ID:    g.name + "_" + profile.ID,
		Name:  profile.Name,
		Email: profile.Email,
		Image: profile.AvatarURL,
	}
	if identity.Name == "" {
		identity.Name = profile.Login
	}
	account := &callbacks.ProviderAccount{
		Provider:          g.name,
		Type:              "oauth",
		ProviderAccountID: profile.ID,
		AccessToken:       tok.AccessToken,
		RefreshToken:      tok.RefreshToken,
		TokenType:         tok.TokenType,
		ExpiresAt:         tok.Expiry,
	}

	result, err := g.pipe.SignIn(ctx, callbacks.SignInParams{Identity: identity, Account: account, Profile: profile})
	if err != nil {
		g.log.ErrorContext(ctx, "signIn callback failed", "error", err)
		g.tokens.Reset(w)
		writeError(w, http.StatusInternalServerError, "Sign-in check failed", "")
		return
	}
	if path, ok := result.Redirect(); ok {
		g.tokens.Reset(w)
		g.redirect(w, r, path)
		return
	}
	if !result.Allowed() {
		g.log.InfoContext(ctx, "sign-in denied", "user", identity.ID)
		g.tokens.Reset(w)
		writeError(w, http.StatusForbidden, "AccessDenied", "")
		return
	}

	sess, err := g.pipe.JWT(ctx, callbacks.JWTParams{
		Token: callbacks.SessionToken{
			Subject: identity.ID,
			Name:    identity.Name,
			Email:   identity.Email,
			Picture: identity.Image,
		},
		Identity: identity,
		Account:  account,
		Profile:  profile,
	})
	if err != nil {
		g.log.ErrorContext(ctx, "jwt callback failed", "error", err)
		g.tokens.Reset(w)
		writeError(w, http.StatusInternalServerError, "Failed to issue session", "")
		return
	}

	claims := token.Claims{
		StandardClaims: jwt.StandardClaims{
			Id: uuid.NewString(),
		},
	}
	ApplySessionToken(&claims, sess)

	if g.hook != nil {
		g.hook.markHooked(claims.Id)
	}
	if _, err := g.tokens.Set(w, claims); err != nil {
		if g.hook != nil {
			g.hook.forget(claims.Id)
		}
		g.log.ErrorContext(ctx, "failed to set session token", "error", err)
		g.tokens.Reset(w)
		writeError(w, http.StatusInternalServerError, "Failed to issue session", "")
		return
	}

	g.log.InfoContext(ctx, "user signed in", "user", identity.ID)
	g.redirect(w, r, handshake.From)
}

// LogoutHandler clears the session cookie and redirects through the
// redirect callback.
func (g *GitHub) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	g.tokens.Reset(w)
	g.redirect(w, r, r.URL.Query().Get("from"))
}

// redirect resolves target through the redirect callback and sends the client there.
func (g *GitHub) redirect(w http.ResponseWriter, r *http.Request, target string) {
	dest, err := g.pipe.Redirect(r.Context(), ResolveTarget(target, g.baseURL), g.baseURL)
	if err != nil {
		g.log.ErrorContext(r.Context(), "redirect callback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to resolve redirect", "")
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// ResolveTarget turns a requested destination into an absolute URL candidate.
// An empty target means the base URL and site-relative paths are joined to it.
// Anything else is returned unchanged for the redirect guard to judge.
func ResolveTarget(target, baseURL string) string {
	switch {
	case target == "":
		return baseURL
	case strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//"):
		return baseURL + target
	default:
		return target
	}
}

func (g *GitHub) handshake(r *http.Request) (*token.Handshake, error) {
	claims, _, err := g.tokens.Get(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errHandshake, err)
	}
	if claims.Handshake == nil {
		return nil, fmt.Errorf("%w: no handshake", errHandshake)
	}
	if state := r.URL.Query().Get("state"); state == "" || claims.Handshake.State != state {
		return nil, fmt.Errorf("%w: state mismatch", errHandshake)
	}
	return claims.Handshake, nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// fetchProfile loads the user profile. When the profile email is private the
// primary verified address from the emails endpoint is used; failures there
// leave the email empty.
func (g *GitHub) fetchProfile(ctx context.Context, client *http.Client) (*callbacks.ProviderProfile, error) {
	var u githubUser
	if err := getJSON(ctx, client, g.userURL, &u); err != nil {
		return nil, fmt.Errorf("%w: %w", errProfile, err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: empty user id", errProfile)
	}

	profile := &callbacks.ProviderProfile{
		ID:        strconv.FormatInt(u.ID, 10),
		Login:     u.Login,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}

	if profile.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, g.emailsURL, &emails); err != nil {
			g.log.DebugContext(ctx, "emails lookup failed", "error", err)
			return profile, nil
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email = e.Email
				break
			}
		}
	}

	return profile, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxProfileBody)).Decode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Details: details})
}
