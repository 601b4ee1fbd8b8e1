package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/wagate/internal/config"
	"github.com/opencode-ai/wagate/internal/registry"
	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/internal/whatsapp"
	"github.com/opencode-ai/wagate/pkg/types"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, ".local", "state"))
	for _, key := range []string{
		"WAGATE_CONFIG_DIR", "WAGATE_CONFIG", "WAGATE_CONFIG_CONTENT", "PORT", "WAGATE_PORT",
		"WAGATE_HOSTNAME", "WAGATE_REGISTRY", "WAGATE_REGISTRY_BACKEND", "WAGATE_AUTH_USERS",
		"WAGATE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return t.TempDir()
}

func seed(t *testing.T, descriptors ...types.SessionDescriptor) *config.Paths {
	t.Helper()
	paths := config.GetPaths()
	require.NoError(t, paths.EnsurePaths())

	store, err := registry.OpenFile(context.Background(), paths.RegistryPath())
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), descriptors))
	require.NoError(t, store.Close())
	return paths
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionsList(t *testing.T) {
	dir := isolate(t)
	seed(t,
		types.SessionDescriptor{ID: "s1", Description: "sales", Ready: true},
		types.SessionDescriptor{ID: "s2", Description: "support"},
	)

	out, err := execute(t, "sessions", "--directory", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "sales")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "support")
	assert.Less(t, bytes.Index([]byte(out), []byte("s1")), bytes.Index([]byte(out), []byte("s2")))
}

func TestSessionsList_ShowsPairing(t *testing.T) {
	dir := isolate(t)
	paths := seed(t,
		types.SessionDescriptor{ID: "s1", Description: "sales", Ready: true},
		types.SessionDescriptor{ID: "s2", Description: "support"},
	)
	creds := storage.New(paths.CredentialsPath())
	ctx := context.Background()
	require.NoError(t, creds.Put(ctx, whatsapp.CredentialPath("s1"), map[string]string{"device": "x"}))
	require.NoError(t, creds.Put(ctx, whatsapp.CredentialPath("old"), map[string]string{"device": "y"}))

	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	out, err := execute(t, "sessions", "--directory", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PAIRED")
	assert.Regexp(t, `s1\s+yes\s+yes\s+sales`, out)
	assert.Regexp(t, `s2\s+no\s+no\s+support`, out)
	assert.Contains(t, out, "credentials without a session: old")
}

func TestSessionsList_Empty(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "sessions", "--directory", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions")
}

func TestSessionsRemove(t *testing.T) {
	dir := isolate(t)
	paths := seed(t,
		types.SessionDescriptor{ID: "s1", Description: "sales", Ready: true},
		types.SessionDescriptor{ID: "s2", Description: "support"},
	)
	creds := storage.New(paths.CredentialsPath())
	require.NoError(t, creds.Put(context.Background(), whatsapp.CredentialPath("s1"), map[string]string{"device": "x"}))

	out, err := execute(t, "sessions", "remove", "s1", "--directory", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed session s1")

	store, err := registry.OpenFile(context.Background(), paths.RegistryPath())
	require.NoError(t, err)
	defer store.Close()
	ds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.SessionDescriptor{{ID: "s2", Description: "support"}}, ds)
	assert.False(t, creds.Exists(context.Background(), whatsapp.CredentialPath("s1")))

	_, err = execute(t, "sessions", "remove", "ghost", "--directory", dir)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRestartConfig(t *testing.T) {
	rc := restartConfig(types.RestartConfig{
		InitialInterval: types.Duration(1e9),
		MaxInterval:     types.Duration(2e9),
	})
	assert.Equal(t, int64(1e9), int64(rc.InitialInterval))
	assert.Equal(t, int64(2e9), int64(rc.MaxInterval))
	assert.Zero(t, rc.MaxElapsed)
}
