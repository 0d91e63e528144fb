package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/authdoc/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("registers in order", func(t *testing.T) {
		reg, err := New(
			Descriptor{Name: "github", ClientID: "id"},
			Descriptor{Name: "GHE", ClientID: "id2"},
		)
		require.NoError(t, err)
		assert.Equal(t, 2, reg.Len())
		assert.Equal(t, []string{"github", "ghe"}, reg.Names())

		list := reg.List()
		require.Len(t, list, 2)
		assert.Equal(t, "github", list[0].Name)
		assert.Equal(t, "ghe", list[1].Name)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := New(Descriptor{Name: "github"}, Descriptor{Name: "GitHub"})
		assert.ErrorIs(t, err, ErrDuplicateProvider)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := New(Descriptor{Name: "  "})
		assert.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := New(Descriptor{Name: "logout"})
		assert.ErrorIs(t, err, ErrInvalidDescriptor)

		_, err = New(Descriptor{Name: "git hub"})
		assert.ErrorIs(t, err, ErrInvalidDescriptor)

		// user ids are "<provider>_<id>" and the engine splits on the first underscore
		_, err = New(Descriptor{Name: "github_ent"})
		assert.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		_, err := New(Descriptor{Name: "ghe", UserURL: "ghe.example/api/v3/user"})
		assert.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("missing credentials accepted", func(t *testing.T) {
		reg, err := New(Descriptor{Name: "github"})
		require.NoError(t, err)
		d, err := reg.Get("github")
		require.NoError(t, err)
		assert.Equal(t, "", d.ClientID)
		assert.Equal(t, "", d.ClientSecret)
	})
}

func TestGet(t *testing.T) {
	reg, err := New(Descriptor{Name: "github", ClientID: "id"})
	require.NoError(t, err)

	d, err := reg.Get("GitHub")
	require.NoError(t, err)
	assert.Equal(t, "id", d.ClientID)

	_, err = reg.Get("gitlab")
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Contains(t, err.Error(), "gitlab")
}

func TestList_ReturnsCopy(t *testing.T) {
	reg, err := New(Descriptor{Name: "github", ClientID: "id"})
	require.NoError(t, err)

	list := reg.List()
	list[0].ClientID = "changed"
	names := reg.Names()
	names[0] = "changed"

	d, err := reg.Get("github")
	require.NoError(t, err)
	assert.Equal(t, "id", d.ClientID)
	assert.Equal(t, []string{"github"}, reg.Names())
}

func TestDescriptorScopes(t *testing.T) {
	tests := []struct {
		scope string
		want  []string
	}{
		{"", nil},
		{"read:user", []string{"read:user"}},
		{"read:user user:email", []string{"read:user", "user:email"}},
		{"read:user, user:email", []string{"read:user", "user:email"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Descriptor{Scope: tt.scope}.Scopes(), "scope %q", tt.scope)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.GitHub = config.GitHubOAuthConfig{ClientID: "cid", ClientSecret: "csecret", Scope: ""}

	d := FromConfig(cfg)
	assert.Equal(t, GitHub, d.Name)
	assert.Equal(t, "cid", d.ClientID)
	assert.Equal(t, "csecret", d.ClientSecret)
	assert.Equal(t, "", d.Scope)

	d = FromConfig(&config.Config{})
	assert.Equal(t, "", d.ClientID)
	assert.Equal(t, "", d.ClientSecret)
}

func TestParse(t *testing.T) {
	env := map[string]string{"GH_ID": "cid", "GH_SECRET": "csecret"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	doc := `
providers:
  - name: github
    client_id_env: GH_ID
    client_secret_env: GH_SECRET
    scope: "read:user"
  - name: ghe
    client_id_env: GHE_ID
    client_secret_env: GHE_SECRET
    auth_url: https://ghe.example/login/oauth/authorize
    token_url: https://ghe.example/login/oauth/access_token
    user_url: https://ghe.example/api/v3/user
`
	descs, err := Parse([]byte(doc), lookup)
	require.NoError(t, err)
	require.Len(t, descs, 2)

	assert.Equal(t, Descriptor{Name: "github", ClientID: "cid", ClientSecret: "csecret", Scope: "read:user"}, descs[0])

	assert.Equal(t, "ghe", descs[1].Name)
	assert.Equal(t, "", descs[1].ClientID, "unset variables resolve to empty")
	assert.Equal(t, "", descs[1].ClientSecret)
	assert.Equal(t, "https://ghe.example/api/v3/user", descs[1].UserURL)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("providers: []"), nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = Parse([]byte("providers: [:"), nil)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  - name: github\n    client_id_env: TEST_LOADFILE_ID\n"), 0o600))
	t.Setenv("TEST_LOADFILE_ID", "from-env")

	descs, err := LoadFile(path, os.LookupEnv)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "from-env", descs[0].ClientID)

	reg, err := New(descs...)
	require.NoError(t, err)
	assert.Equal(t, []string{"github"}, reg.Names())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), os.LookupEnv)
	assert.Error(t, err)
}
