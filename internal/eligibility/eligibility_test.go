package eligibility

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

var repo = events.Repository{ID: 12, ProjectKey: "PROJ", Slug: "widgets"}

func storeWith(values settings.Settings) *settings.FileStore {
	store := settings.NewMemoryStore()
	store.Put(repo, true, values)
	return store
}

type failingSettings struct{}

func (failingSettings) GetRepositoryHook(context.Context, events.Repository) (*settings.Hook, error) {
	return nil, errors.New("settings backend down")
}

func (failingSettings) GetSettings(context.Context, events.Repository) (settings.Settings, error) {
	return nil, errors.New("settings backend down")
}

type stubMerges struct {
	status MergeStatus
	err    error
	calls  int
}

func (m *stubMerges) CanMerge(_ context.Context, _ events.Repository, _ int64) (MergeStatus, error) {
	m.calls++
	return m.status, m.err
}

func pushContext(username string, changes ...events.RefChange) *events.Context {
	return events.NewContext(events.Event{Kind: events.KindPush, Repository: repo, RefChanges: changes}, repo, username)
}

func update(ref string) events.RefChange {
	return events.RefChange{RefID: ref, ToHash: "abc", Type: events.ChangeUpdate}
}

func deletion(ref string) events.RefChange {
	return events.RefChange{RefID: ref, ToHash: "0000", Type: events.ChangeDelete}
}

func prContext(kind events.Kind, state events.PullRequestState, previousFrom, latestFrom string) *events.Context {
	ev := events.Event{
		Kind:       kind,
		Repository: repo,
		PullRequest: &events.PullRequest{
			ID:      5,
			State:   state,
			FromRef: events.PullRequestRef{ID: "refs/heads/feature", LatestCommit: latestFrom},
			ToRef:   events.PullRequestRef{ID: "refs/heads/master", DisplayID: "master", Repository: repo},
		},
		PreviousFromHash: previousFrom,
	}
	return events.NewContext(ev, repo, "alice")
}

// every kind, used to check that filters pass through what they do not handle
var allKinds = []events.Kind{
	events.KindUnknown,
	events.KindPush,
	events.KindBranchCreated,
	events.KindPullRequestOpened,
	events.KindPullRequestReopened,
	events.KindPullRequestRescoped,
	events.KindPullRequestMerged,
}

func TestBranches(t *testing.T) {
	changes := []events.RefChange{
		update("refs/heads/master"),
		deletion("refs/heads/gone"),
		update("refs/tags/v1.0"),
		{RefID: "refs/heads/feature/new", Type: events.ChangeAdd},
	}

	got := slices.Collect(Branches(changes))
	assert.Equal(t, []string{"master", "feature/new"}, got)

	// stopping early does not panic
	for b := range Branches(changes) {
		assert.Equal(t, "master", b)
		break
	}
}

func TestHasMatch(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		branch   string
		want     bool
	}{
		{"exact", []string{"master"}, "master", true},
		{"case insensitive", []string{"Master"}, "MASTER", true},
		{"wildcard prefix", []string{"release/*"}, "Release/1.0", true},
		{"wildcard needs prefix", []string{"release/*"}, "hotfix/1.0", false},
		{"star alone matches all", []string{"*"}, "anything", true},
		{"no partial without star", []string{"feat"}, "feature", false},
		{"star only at end", []string{"*fix"}, "hotfix", false},
		{"any pattern", []string{"dev", "master"}, "master", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasMatch(tt.patterns, slices.Values([]string{tt.branch}))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBranchFilter(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		option   string
		branches string
		changes  []events.RefChange
		want     bool
	}{
		{"no option", "", "master", []events.RefChange{update("refs/heads/dev")}, true},
		{"unknown option", "greylist", "master", []events.RefChange{update("refs/heads/dev")}, true},
		{"blacklist match", Blacklist, "master release/*", []events.RefChange{update("refs/heads/release/2")}, false},
		{"blacklist no match", Blacklist, "master", []events.RefChange{update("refs/heads/dev")}, true},
		{"whitelist match", Whitelist, "master dev", []events.RefChange{update("refs/heads/DEV")}, true},
		{"whitelist no match", Whitelist, "master", []events.RefChange{update("refs/heads/dev")}, false},
		{"blacklisted branch deleted", Blacklist, "master", []events.RefChange{deletion("refs/heads/master")}, true},
		// deletions-only pushes touch no branch: blacklist passes, whitelist suppresses
		{"empty set under blacklist", Blacklist, "*", []events.RefChange{deletion("refs/heads/a")}, true},
		{"empty set under whitelist", Whitelist, "*", []events.RefChange{deletion("refs/heads/a")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewBranchFilter(storeWith(settings.Settings{
				settings.BranchOptions:         tt.option,
				settings.BranchOptionsBranches: tt.branches,
			}))

			got, err := f.ShouldDeliverNotification(ctx, pushContext("alice", tt.changes...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBranchFilterNoSettings(t *testing.T) {
	f := NewBranchFilter(settings.NewMemoryStore())
	got, err := f.ShouldDeliverNotification(context.Background(), pushContext("alice", update("refs/heads/x")))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestBranchFilterSettingsError(t *testing.T) {
	f := NewBranchFilter(failingSettings{})
	_, err := f.ShouldDeliverNotification(context.Background(), pushContext("alice", update("refs/heads/x")))
	assert.Error(t, err)
}

func TestIgnoreCommittersFilter(t *testing.T) {
	f := NewIgnoreCommittersFilter(storeWith(settings.Settings{settings.IgnoreCommitters: "alice, bob"}))
	ctx := context.Background()

	tests := []struct {
		username string
		want     bool
	}{
		{"Bob", false},
		{"alice", false},
		{"carol", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			got, err := f.ShouldDeliverNotification(ctx, pushContext(tt.username, update("refs/heads/master")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIgnoreCommittersFilterNoList(t *testing.T) {
	f := NewIgnoreCommittersFilter(storeWith(settings.Settings{settings.JenkinsBase: "http://j"}))
	got, err := f.ShouldDeliverNotification(context.Background(), pushContext("bob"))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestMergeableFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("clean merge passes", func(t *testing.T) {
		m := &stubMerges{}
		got, err := NewMergeableFilter(m).ShouldDeliverNotification(ctx, prContext(events.KindPullRequestOpened, events.StateOpen, "", "a"))
		require.NoError(t, err)
		assert.True(t, got)
		assert.Equal(t, 1, m.calls)
	})

	t.Run("conflict suppresses", func(t *testing.T) {
		m := &stubMerges{status: MergeStatus{Conflicted: true}}
		got, err := NewMergeableFilter(m).ShouldDeliverNotification(ctx, prContext(events.KindPullRequestReopened, events.StateOpen, "", "a"))
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("rescope from target side suppresses without asking", func(t *testing.T) {
		m := &stubMerges{}
		got, err := NewMergeableFilter(m).ShouldDeliverNotification(ctx, prContext(events.KindPullRequestRescoped, events.StateOpen, "same", "same"))
		require.NoError(t, err)
		assert.False(t, got)
		assert.Zero(t, m.calls)
	})

	t.Run("rescope from source side asks oracle", func(t *testing.T) {
		m := &stubMerges{}
		got, err := NewMergeableFilter(m).ShouldDeliverNotification(ctx, prContext(events.KindPullRequestRescoped, events.StateOpen, "old", "new"))
		require.NoError(t, err)
		assert.True(t, got)
		assert.Equal(t, 1, m.calls)
	})

	t.Run("oracle failure fails open", func(t *testing.T) {
		m := &stubMerges{err: errors.New("host unavailable")}
		got, err := NewMergeableFilter(m).ShouldDeliverNotification(ctx, prContext(events.KindPullRequestOpened, events.StateOpen, "", "a"))
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("not open passes", func(t *testing.T) {
		m := &stubMerges{status: MergeStatus{Conflicted: true}}
		got, err := NewMergeableFilter(m).ShouldDeliverNotification(ctx, prContext(events.KindPullRequestOpened, events.StateDeclined, "", "a"))
		require.NoError(t, err)
		assert.True(t, got)
		assert.Zero(t, m.calls)
	})

	t.Run("merged passes", func(t *testing.T) {
		m := &stubMerges{status: MergeStatus{Conflicted: true}}
		got, err := NewMergeableFilter(m).ShouldDeliverNotification(ctx, prContext(events.KindPullRequestMerged, events.StateMerged, "", "a"))
		require.NoError(t, err)
		assert.True(t, got)
	})
}

func TestEmptyBranchFilter(t *testing.T) {
	ctx := context.Background()
	created := events.NewContext(events.Event{Kind: events.KindBranchCreated, Repository: repo}, repo, "alice")

	enabled := NewEmptyBranchFilter(storeWith(settings.Settings{settings.OmitNewBranchWithoutChanges: true}))
	got, err := enabled.ShouldDeliverNotification(ctx, created)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = enabled.ShouldDeliverNotification(ctx, pushContext("alice", update("refs/heads/x")))
	require.NoError(t, err)
	assert.True(t, got)

	disabled := NewEmptyBranchFilter(storeWith(settings.Settings{settings.OmitNewBranchWithoutChanges: false}))
	got, err = disabled.ShouldDeliverNotification(ctx, created)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRescopeFilter(t *testing.T) {
	ctx := context.Background()
	f := NewRescopeFilter()

	got, err := f.ShouldDeliverNotification(ctx, prContext(events.KindPullRequestRescoped, events.StateOpen, "same", "same"))
	require.NoError(t, err)
	assert.False(t, got)

	got, err = f.ShouldDeliverNotification(ctx, prContext(events.KindPullRequestRescoped, events.StateOpen, "old", "new"))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestFiltersPassThroughUnhandledKinds(t *testing.T) {
	store := storeWith(settings.Settings{
		settings.BranchOptions:               Whitelist,
		settings.BranchOptionsBranches:       "nothing-matches",
		settings.OmitNewBranchWithoutChanges: true,
	})
	conflicted := &stubMerges{status: MergeStatus{Conflicted: true}}

	handled := map[string][]events.Kind{
		"branch":     {events.KindPush},
		"new-branch": {events.KindBranchCreated},
		"rescope":    {events.KindPullRequestRescoped},
		"mergeable":  {events.KindPullRequestOpened, events.KindPullRequestReopened, events.KindPullRequestRescoped},
	}
	filters := []interface {
		Filter
		Named
	}{
		NewBranchFilter(store),
		NewEmptyBranchFilter(store),
		NewRescopeFilter(),
		NewMergeableFilter(conflicted),
	}

	for _, f := range filters {
		for _, kind := range allKinds {
			if slices.Contains(handled[f.Name()], kind) {
				continue
			}
			ec := prContext(kind, events.StateOpen, "same", "same")
			got, err := f.ShouldDeliverNotification(context.Background(), ec)
			require.NoError(t, err)
			assert.True(t, got, "%s filter should pass %s through", f.Name(), kind)
		}
	}
}

func TestChainShortCircuits(t *testing.T) {
	var calls []string
	record := func(name string, result bool) Filter {
		return FilterFunc(func(context.Context, *events.Context) (bool, error) {
			calls = append(calls, name)
			return result, nil
		})
	}

	chain := NewChain(nil, record("F1", true), record("F2", false), record("F3", true))
	got, err := chain.ShouldDeliverNotification(context.Background(), pushContext("alice"))
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, []string{"F1", "F2"}, calls)
}

func TestChainAllPass(t *testing.T) {
	pass := FilterFunc(func(context.Context, *events.Context) (bool, error) { return true, nil })
	chain := NewChain(nil, pass, pass)

	got, err := chain.ShouldDeliverNotification(context.Background(), pushContext("alice"))
	require.NoError(t, err)
	assert.True(t, got)

	empty, err := NewChain(nil).ShouldDeliverNotification(context.Background(), pushContext("alice"))
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestChainPropagatesFilterErrors(t *testing.T) {
	chain := NewChain(nil, NewIgnoreCommittersFilter(failingSettings{}))
	_, err := chain.ShouldDeliverNotification(context.Background(), pushContext("alice"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ignore-committers")
}

func TestDefaultChain(t *testing.T) {
	store := storeWith(settings.Settings{
		settings.JenkinsBase:      "http://j",
		settings.IgnoreCommitters: "ci-bot",
	})
	chain := NewDefaultChain(store, &stubMerges{}, nil)
	assert.Equal(t, 5, chain.Len())

	got, err := chain.ShouldDeliverNotification(context.Background(), pushContext("ci-bot", update("refs/heads/master")))
	require.NoError(t, err)
	assert.False(t, got)

	got, err = chain.ShouldDeliverNotification(context.Background(), pushContext("dev", update("refs/heads/master")))
	require.NoError(t, err)
	assert.True(t, got)
}
