package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
)

const settingsYAML = `repositories:
  - project: PROJ
    slug: widgets
    enabled: true
    settings:
      jenkinsBase: http://jenkins.example.com/
      cloneType: http
      ignoreCerts: true
      omitHashCode: "false"
      ignoreCommitters: "alice, bob"
  - project: PROJ
    slug: disabled
    enabled: false
`

var widgets = events.Repository{ID: 1, ProjectKey: "PROJ", Slug: "widgets"}

func writeSettings(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSettingsAccessors(t *testing.T) {
	s := Settings{
		"str":   "value",
		"num":   42,
		"yes":   true,
		"on":    "on",
		"bad":   "maybe",
		"false": "false",
	}

	assert.Equal(t, "value", s.GetString("str"))
	assert.Equal(t, "42", s.GetString("num"))
	assert.Equal(t, "", s.GetString("missing"))

	assert.True(t, s.GetBool("yes", false))
	assert.True(t, s.GetBool("on", false))
	assert.False(t, s.GetBool("false", true))
	assert.True(t, s.GetBool("bad", true))
	assert.False(t, s.GetBool("missing", false))
	assert.True(t, s.GetBool("missing", true))

	var nilSettings Settings
	assert.Equal(t, "", nilSettings.GetString(JenkinsBase))
}

func TestValidateSettings(t *testing.T) {
	err := ValidateSettings(Settings{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, JenkinsBase, verr.Field)

	assert.NoError(t, ValidateSettings(Settings{JenkinsBase: "http://j"}))
	assert.Error(t, ValidateSettings(Settings{JenkinsBase: "http://j", BranchOptions: "greylist"}))
}

func TestFileStore(t *testing.T) {
	path := writeSettings(t, t.TempDir(), settingsYAML)
	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()

	hook, err := store.GetRepositoryHook(ctx, widgets)
	require.NoError(t, err)
	require.NotNil(t, hook)
	assert.True(t, hook.Enabled)
	assert.Equal(t, HookKey, hook.Key)

	s, err := store.GetSettings(ctx, widgets)
	require.NoError(t, err)
	assert.Equal(t, "http://jenkins.example.com/", s.GetString(JenkinsBase))
	assert.True(t, s.GetBool(IgnoreCerts, false))
	assert.False(t, s.GetBool(OmitHashCode, true))

	// mutating the returned map does not leak into the store
	s[JenkinsBase] = "changed"
	again, err := store.GetSettings(ctx, widgets)
	require.NoError(t, err)
	assert.Equal(t, "http://jenkins.example.com/", again.GetString(JenkinsBase))

	disabled, err := store.GetRepositoryHook(ctx, events.Repository{ProjectKey: "PROJ", Slug: "disabled"})
	require.NoError(t, err)
	require.NotNil(t, disabled)
	assert.False(t, disabled.Enabled)

	missing, err := store.GetSettings(ctx, events.Repository{ProjectKey: "PROJ", Slug: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFileStoreLookupRequiresGrant(t *testing.T) {
	store := NewMemoryStore(RepositoryEntry{Project: "PROJ", Slug: "widgets", Enabled: true})

	_, _, err := store.lookup(context.Background(), widgets)
	assert.ErrorIs(t, err, permission.ErrDenied)

	_, ok, err := store.lookup(permission.With(context.Background(), permission.RepoAdmin, "test"), widgets)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreReloadKeepsSnapshotOnError(t *testing.T) {
	path := writeSettings(t, t.TempDir(), settingsYAML)
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("repositories: [oops"), 0o644))
	assert.Error(t, store.Reload())

	s, err := store.GetSettings(context.Background(), widgets)
	require.NoError(t, err)
	assert.Equal(t, "http", s.GetString(CloneType))
}

func TestFileStoreRejectsInvalidEnabledEntry(t *testing.T) {
	path := writeSettings(t, t.TempDir(), `repositories:
  - project: PROJ
    slug: widgets
    enabled: true
    settings:
      cloneType: http
`)
	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestMemoryStorePut(t *testing.T) {
	store := NewMemoryStore()
	store.Put(widgets, true, Settings{JenkinsBase: "http://j"})

	s, err := store.GetSettings(context.Background(), widgets)
	require.NoError(t, err)
	assert.Equal(t, "http://j", s.GetString(JenkinsBase))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeSettings(t, t.TempDir(), settingsYAML)
	store, err := NewFileStore(path)
	require.NoError(t, err)

	reloaded := make(chan error, 4)
	w, err := NewWatcher(store, WithDebounce(20*time.Millisecond), WithReloadHook(func(err error) {
		select {
		case reloaded <- err:
		default:
		}
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := `repositories:
  - project: PROJ
    slug: widgets
    enabled: true
    settings:
      jenkinsBase: http://other.example.com
      cloneType: ssh
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		s, err := store.GetSettings(context.Background(), widgets)
		return err == nil && s.GetString(CloneType) == "ssh"
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool { return len(reloaded) > 0 }, time.Second, 10*time.Millisecond)
}

func TestNewWatcherNeedsFile(t *testing.T) {
	_, err := NewWatcher(NewMemoryStore())
	assert.Error(t, err)
}
