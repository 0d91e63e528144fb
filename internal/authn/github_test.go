package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/authdoc/internal/callbacks"
	"github.com/authdoc/internal/logger"
	"github.com/authdoc/internal/registry"
	"github.com/go-pkgz/auth/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret      = "test-secret"
	testBaseURL     = "http://app.test"
	testCode        = "good-code"
	testAccessToken = "gho_test"
	jwtCookieName   = "JWT"
)

// fakeGitHub serves the OAuth and REST endpoints the provider talks to.
type fakeGitHub struct {
	user   map[string]interface{}
	emails []githubEmail
	noMail bool // emails endpoint fails
}

func (f *fakeGitHub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != testCode {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"` + testAccessToken + `","token_type":"bearer","scope":"read:user"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if f.noMail {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	gh     *GitHub
	tokens *token.Service
	diag   *bytes.Buffer
}

func newTestEnv(t *testing.T, fake *fakeGitHub, cb callbacks.Callbacks) *testEnv {
	t.Helper()
	srv := fake.server(t)

	diag := &bytes.Buffer{}
	pipe := callbacks.New(logger.NewDiagnostic(diag), cb)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	hook := NewTokenHook(pipe, quiet)

	tokens := token.NewService(token.Opts{
		SecretReader:   token.SecretFunc(func(string) (string, error) { return testSecret, nil }),
		ClaimsUpd:      hook,
		TokenDuration:  time.Hour,
		CookieDuration: 24 * time.Hour,
		DisableXSRF:    true,
		Issuer:         "authdoc-test",
	})

	gh := NewGitHub(registry.Descriptor{
		Name:         "github",
		ClientID:     "cid",
		ClientSecret: "csecret",
		Scope:        "read:user",
		AuthURL:      srv.URL + "/login/oauth/authorize",
		TokenURL:     srv.URL + "/login/oauth/access_token",
		UserURL:      srv.URL + "/user",
	}, GitHubOpts{
		BaseURL:    testBaseURL,
		Tokens:     tokens,
		Pipeline:   pipe,
		Hook:       hook,
		HTTPClient: srv.Client(),
		Logger:     quiet,
	})

	return &testEnv{gh: gh, tokens: tokens, diag: diag}
}

func (e *testEnv) login(t *testing.T, from string) (string, []*http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/github/login?from="+url.QueryEscape(from), nil)
	rec := httptest.NewRecorder()
	e.gh.LoginHandler(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("state"), rec.Result().Cookies()
}

func (e *testEnv) callback(query string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+query, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.gh.AuthHandler(rec, req)
	return rec
}

// sessionCleared reports whether rec resets the token cookie.
func sessionCleared(rec *httptest.ResponseRecorder) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == jwtCookieName && c.Value == "" {
			return true
		}
	}
	return false
}

func (e *testEnv) diagLines() []string {
	out := strings.TrimSpace(e.diag.String())
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func octocat() *fakeGitHub {
	return &fakeGitHub{
		user: map[string]interface{}{
			"id":         42,
			"login":      "octocat",
			"name":       "Octo Cat",
			"email":      "",
			"avatar_url": "https://avatars.example/42",
		},
		emails: []githubEmail{
			{Email: "old@example.com", Primary: false, Verified: true},
			{Email: "octo@example.com", Primary: true, Verified: true},
		},
	}
}

func TestLoginHandler(t *testing.T) {
	env := newTestEnv(t, octocat(), callbacks.Callbacks{})

	req := httptest.NewRequest(http.MethodGet, "/auth/github/login?from=/dashboard", nil)
	rec := httptest.NewRecorder()
	env.gh.LoginHandler(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login/oauth/authorize", loc.Path)
	assert.Equal(t, "cid", loc.Query().Get("client_id"))
	assert.Equal(t, "read:user", loc.Query().Get("scope"))
	assert.Equal(t, testBaseURL+"/auth/github/callback", loc.Query().Get("redirect_uri"))
	require.NotEmpty(t, loc.Query().Get("state"))

	c := findCookie(rec.Result().Cookies(), jwtCookieName)
	require.NotNil(t, c)
	claims, err := env.tokens.Parse(c.Value)
	require.NoError(t, err)
	require.NotNil(t, claims.Handshake)
	assert.Equal(t, loc.Query().Get("state"), claims.Handshake.State)
	assert.Equal(t, "/dashboard", claims.Handshake.From)
	assert.Nil(t, claims.User)

	assert.Empty(t, env.diagLines(), "login runs no callbacks")
}

func TestAuthHandler_SignIn(t *testing.T) {
	env := newTestEnv(t, octocat(), callbacks.Callbacks{})
	state, cookies := env.login(t, "/dashboard")

	rec := env.callback("state="+state+"&code="+testCode, cookies)

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, testBaseURL+"/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, []string{"signIn!", "jwt!", "redirect!"}, env.diagLines())

	c := findCookie(rec.Result().Cookies(), jwtCookieName)
	require.NotNil(t, c)
	claims, err := env.tokens.Parse(c.Value)
	require.NoError(t, err)
	require.NotNil(t, claims.User)
	assert.Nil(t, claims.Handshake)
	assert.Equal(t, "github_42", claims.User.ID)
	assert.Equal(t, "Octo Cat", claims.User.Name)
	assert.Equal(t, "octo@example.com", claims.User.Email, "private email resolved through emails endpoint")
	assert.Equal(t, "https://avatars.example/42", claims.User.Picture)
	assert.Equal(t, testAccessToken, claims.User.StrAttr(AccessTokenAttr))
}

func TestAuthHandler_EmailFallbackFailureKeepsEmpty(t *testing.T) {
	fake := octocat()
	fake.noMail = true
	env := newTestEnv(t, fake, callbacks.Callbacks{})
	state, cookies := env.login(t, "")

	rec := env.callback("state="+state+"&code="+testCode, cookies)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, testBaseURL, rec.Header().Get("Location"))

	claims, err := env.tokens.Parse(findCookie(rec.Result().Cookies(), jwtCookieName).Value)
	require.NoError(t, err)
	assert.Equal(t, "", claims.User.Email)
}

func TestAuthHandler_NameFallsBackToLogin(t *testing.T) {
	fake := octocat()
	fake.user["name"] = ""
	fake.user["email"] = "public@example.com"
	env := newTestEnv(t, fake, callbacks.Callbacks{})
	state, cookies := env.login(t, "")

	rec := env.callback("state="+state+"&code="+testCode, cookies)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	claims, err := env.tokens.Parse(findCookie(rec.Result().Cookies(), jwtCookieName).Value)
	require.NoError(t, err)
	assert.Equal(t, "octocat", claims.User.Name)
	assert.Equal(t, "public@example.com", claims.User.Email)
}

func TestAuthHandler_ExternalFromFallsBackToBase(t *testing.T) {
	env := newTestEnv(t, octocat(), callbacks.Callbacks{})
	state, cookies := env.login(t, "https://evil.example/steal")

	rec := env.callback("state="+state+"&code="+testCode, cookies)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL, rec.Header().Get("Location"))
}

func TestAuthHandler_SignInRejected(t *testing.T) {
	t.Run("deny", func(t *testing.T) {
		env := newTestEnv(t, octocat(), callbacks.Callbacks{SignIn: callbacks.Allowlist([]string{"someone-else"}, "")})
		state, cookies := env.login(t, "/dashboard")

		rec := env.callback("state="+state+"&code="+testCode, cookies)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "AccessDenied")
		assert.Equal(t, []string{"signIn!"}, env.diagLines())

		c := findCookie(rec.Result().Cookies(), jwtCookieName)
		require.NotNil(t, c)
		assert.Empty(t, c.Value, "handshake cookie is cleared")
	})

	t.Run("redirect", func(t *testing.T) {
		env := newTestEnv(t, octocat(), callbacks.Callbacks{SignIn: callbacks.Allowlist(nil, "/denied")})
		state, cookies := env.login(t, "/dashboard")

		rec := env.callback("state="+state+"&code="+testCode, cookies)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, testBaseURL+"/denied", rec.Header().Get("Location"))
		assert.Equal(t, []string{"signIn!", "redirect!"}, env.diagLines())
	})

	t.Run("allowlisted", func(t *testing.T) {
		env := newTestEnv(t, octocat(), callbacks.Callbacks{SignIn: callbacks.Allowlist([]string{"OctoCat"}, "/denied")})
		state, cookies := env.login(t, "/dashboard")

		rec := env.callback("state="+state+"&code="+testCode, cookies)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, testBaseURL+"/dashboard", rec.Header().Get("Location"))
	})
}

func TestAuthHandler_HookErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("signIn", func(t *testing.T) {
		env := newTestEnv(t, octocat(), callbacks.Callbacks{
			SignIn: func(context.Context, callbacks.SignInParams) (callbacks.SignInResult, error) {
				return callbacks.Deny(), boom
			},
		})
		state, cookies := env.login(t, "")
		rec := env.callback("state="+state+"&code="+testCode, cookies)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.True(t, sessionCleared(rec), "handshake cookie cleared")
	})

	t.Run("jwt", func(t *testing.T) {
		env := newTestEnv(t, octocat(), callbacks.Callbacks{
			JWT: func(context.Context, callbacks.JWTParams) (callbacks.SessionToken, error) {
				return callbacks.SessionToken{}, boom
			},
		})
		state, cookies := env.login(t, "")
		rec := env.callback("state="+state+"&code="+testCode, cookies)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, []string{"signIn!", "jwt!"}, env.diagLines())
		assert.True(t, sessionCleared(rec), "handshake cookie cleared")
	})
}

func TestAuthHandler_InvalidRequests(t *testing.T) {
	tests := []struct {
		name       string
		query      func(state string) string
		noCookies  bool
		wantStatus int
		wantClear  bool
	}{
		{"state mismatch", func(string) string { return "state=wrong&code=" + testCode }, false, http.StatusForbidden, false},
		{"missing state", func(string) string { return "code=" + testCode }, false, http.StatusForbidden, false},
		{"no handshake cookie", func(s string) string { return "state=" + s + "&code=" + testCode }, true, http.StatusForbidden, false},
		{"provider error", func(s string) string { return "state=" + s + "&error=access_denied" }, false, http.StatusUnauthorized, true},
		{"bad code", func(s string) string { return "state=" + s + "&code=bad" }, false, http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, octocat(), callbacks.Callbacks{})
			state, cookies := env.login(t, "")
			if tt.noCookies {
				cookies = nil
			}

			rec := env.callback(tt.query(state), cookies)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			assert.Empty(t, env.diagLines(), "no callbacks run for rejected requests")
			assert.Equal(t, tt.wantClear, sessionCleared(rec))
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	env := newTestEnv(t, octocat(), callbacks.Callbacks{})

	req := httptest.NewRequest(http.MethodGet, "/auth/github/logout?from=/bye", nil)
	rec := httptest.NewRecorder()
	env.gh.LogoutHandler(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL+"/bye", rec.Header().Get("Location"))
	assert.Equal(t, []string{"redirect!"}, env.diagLines())

	c := findCookie(rec.Result().Cookies(), jwtCookieName)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"", testBaseURL},
		{"/dashboard", testBaseURL + "/dashboard"},
		{"//evil.example", "//evil.example"},
		{"https://evil.example", "https://evil.example"},
		{testBaseURL + "/x", testBaseURL + "/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveTarget(tt.target, testBaseURL), "target %q", tt.target)
	}
}

func TestNewGitHub_Defaults(t *testing.T) {
	gh := NewGitHub(registry.Descriptor{Name: "github"}, GitHubOpts{BaseURL: testBaseURL + "/"})

	assert.Equal(t, "github", gh.Name())
	assert.Equal(t, "https://github.com/login/oauth/authorize", gh.oauth.Endpoint.AuthURL)
	assert.Equal(t, defaultUserURL, gh.userURL)
	assert.Equal(t, defaultUserURL+"/emails", gh.emailsURL)
	assert.Equal(t, testBaseURL+"/auth/github/callback", gh.oauth.RedirectURL)
	assert.Empty(t, gh.oauth.ClientID, "missing credentials are accepted")
	assert.Nil(t, gh.oauth.Scopes)
	assert.NotNil(t, gh.client)
}
