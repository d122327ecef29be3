package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmhooks/jenkins-notifier/internal/bitbucket"
	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/notifier"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

const pushPayload = `{
  "eventKey": "repo:refs_changed",
  "actor": {"name": "alice"},
  "repository": {"id": 1, "slug": "widgets", "project": {"key": "PROJ"}},
  "changes": [{"ref": {"id": "refs/heads/main", "displayId": "main"}, "refId": "refs/heads/main",
    "fromHash": "aaa", "toHash": "bbb", "type": "UPDATE"}]
}`

type stubEvents struct {
	mu       sync.Mutex
	received []events.Event
	readable bool
	err      error
}

func (s *stubEvents) Handle(ctx context.Context, ev events.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, ev)
	s.readable = permission.Has(ctx, permission.RepoRead)
	return len(ev.RefChanges), s.err
}

type stubNotifier struct {
	requests []notifier.Request
	result   *notifier.NotificationResult
	notified []string
}

func (n *stubNotifier) Notify(_ context.Context, repo events.Repository, ref, sha1, target string) *notifier.NotificationResult {
	n.notified = append(n.notified, repo.Key(), ref, sha1, target)
	return n.result
}

func (n *stubNotifier) NotifyWith(_ context.Context, req notifier.Request) notifier.NotificationResult {
	n.requests = append(n.requests, req)
	return notifier.NewResult(true, "http://jenkins/git/notifyCommit?url=x", "Jenkins response: Scheduled polling")
}

type stubHost struct {
	sshEnabled bool
}

func (h *stubHost) Repository(_ context.Context, projectKey, slug string) (*bitbucket.RepositoryInfo, error) {
	if projectKey != "PROJ" || slug != "widgets" {
		return nil, bitbucket.ErrNotFound
	}
	info := &bitbucket.RepositoryInfo{ID: 1, Slug: slug}
	info.Project.Key = projectKey
	info.Links.Clone = []bitbucket.Link{
		{Href: "https://bitbucket.example.com/scm/proj/widgets.git", Name: "http"},
		{Href: "ssh://git@bitbucket.example.com:7999/proj/widgets.git", Name: "ssh"},
	}
	return info, nil
}

func (h *stubHost) DefaultBranch(context.Context, events.Repository) (*bitbucket.Branch, error) {
	return &bitbucket.Branch{ID: "refs/heads/main", DisplayID: "main", LatestCommit: "abc123"}, nil
}

func (h *stubHost) HTTPCloneURL(_ context.Context, repo events.Repository) (string, error) {
	return repo.HTTPCloneURL, nil
}

func (h *stubHost) SSHCloneURL(ctx context.Context, repo events.Repository) (string, error) {
	if err := permission.Require(ctx, permission.RepoRead); err != nil {
		return "", err
	}
	return repo.SSHCloneURL, nil
}

func (h *stubHost) SSHEnabled() bool { return h.sshEnabled }

type fixture struct {
	events   *stubEvents
	notifier *stubNotifier
	host     *stubHost
	store    *settings.FileStore
	handler  http.Handler
}

func newFixture(t *testing.T, security *SecurityValidator) *fixture {
	t.Helper()
	f := &fixture{
		events:   &stubEvents{},
		notifier: &stubNotifier{},
		host:     &stubHost{sshEnabled: true},
		store: settings.NewMemoryStore(settings.RepositoryEntry{
			Project: "PROJ",
			Slug:    "widgets",
			Enabled: true,
			Settings: settings.Settings{
				settings.JenkinsBase:            "http://jenkins",
				settings.OmitTriggerBuildButton: true,
			},
		}),
	}
	srv, err := New(Config{
		Events:         f.events,
		Notifier:       f.notifier,
		Host:           f.host,
		Settings:       f.store,
		Security:       security,
		MetricsPath:    "/metrics",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		Logger:         logger.NewNop(),
	})
	require.NoError(t, err)
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestWebhookAccepted(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	req.Header.Set(eventKeyHeader, events.KeyRefsChanged)
	rec := f.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "accepted", body["status"])
	assert.NotEmpty(t, body["delivery"])
	assert.EqualValues(t, 1, body["dispatched"])

	require.Len(t, f.events.received, 1)
	assert.Equal(t, events.KindPush, f.events.received[0].Kind)
	assert.True(t, f.events.readable)
}

func TestWebhookKeepsRequestID(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	req.Header.Set(requestIDHeader, "delivery-42")
	rec := f.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "delivery-42", decodeBody(t, rec)["delivery"])
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	req.Header.Set(eventKeyHeader, "diagnostics:ping")
	rec := f.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ignored", decodeBody(t, rec)["status"])
	assert.Empty(t, f.events.received)
}

func TestWebhookErrors(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{not json`))
	req.Header.Set(eventKeyHeader, events.KeyRefsChanged)
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)

	f.events.err = errors.New("settings unavailable")
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	rec := f.do(req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "settings unavailable")
}

func TestWebhookSignature(t *testing.T) {
	f := newFixture(t, NewSecurityValidator("s3cret", 0))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	req.Header.Set(SignatureHeader, "sha256="+hex.EncodeToString(Sign([]byte("wrong"), []byte(pushPayload))))
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	req.Header.Set(SignatureHeader, "sha256="+hex.EncodeToString(Sign([]byte("s3cret"), []byte(pushPayload))))
	assert.Equal(t, http.StatusAccepted, f.do(req).Code)
}

func TestWebhookRateLimit(t *testing.T) {
	// 10 per minute gives a burst of one
	f := newFixture(t, NewSecurityValidator("", 10))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	assert.Equal(t, http.StatusAccepted, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushPayload))
	assert.Equal(t, http.StatusTooManyRequests, f.do(req).Code)
}

func TestRateLimitConcurrentSameSource(t *testing.T) {
	// burst of one: concurrent first requests must share one bucket
	v := NewSecurityValidator("", 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.Allow("10.0.0.1") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowed)
	assert.NoError(t, v.Allow("10.0.0.2"))
}

func restPath(suffix string) string {
	return "/rest/jenkins/latest/projects/PROJ/repos/widgets/" + suffix
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTestConfigurationRequiresSettings(t *testing.T) {
	f := newFixture(t, nil)

	cases := []url.Values{
		{"cloneType": {"http"}},
		{"jenkinsBase": {"http://jenkins"}},
		{"jenkinsBase": {"http://jenkins"}, "cloneType": {"custom"}},
	}
	for _, form := range cases {
		rec := f.do(formRequest(restPath("test"), form))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["successful"])
		assert.Equal(t, "Settings must be configured", body["message"])
	}
	assert.Empty(t, f.notifier.requests)
}

func TestTestConfiguration(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(formRequest(restPath("test"), url.Values{
		"jenkinsBase":  {"http://jenkins"},
		"cloneType":    {"custom"},
		"gitRepoUrl":   {"git@example.com:widgets.git"},
		"ignoreCerts":  {"true"},
		"omitHashCode": {"on"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["successful"])
	assert.Equal(t, "Jenkins response: Scheduled polling", body["message"])
	assert.NotEmpty(t, body["url"])

	require.Len(t, f.notifier.requests, 1)
	got := f.notifier.requests[0]
	assert.Equal(t, "PROJ/widgets", got.Repository.Key())
	assert.Equal(t, "git@example.com:widgets.git", got.CloneURL)
	assert.Equal(t, "main", got.Ref)
	assert.Equal(t, "abc123", got.SHA1)
	assert.Equal(t, "main", got.TargetBranch)
	assert.True(t, got.IgnoreCerts)
	assert.True(t, got.OmitHashCode)
	assert.False(t, got.OmitBranchName)
}

func TestUnknownRepository(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/rest/jenkins/latest/projects/PROJ/repos/missing/config", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerJenkins(t *testing.T) {
	f := newFixture(t, nil)
	path := restPath("triggerJenkins") + "?branches=main&sha1=abc&targetBranch=main"

	assert.Equal(t, http.StatusNoContent, f.do(httptest.NewRequest(http.MethodPost, path, nil)).Code)
	assert.Equal(t, []string{"PROJ/widgets", "main", "abc", "main"}, f.notifier.notified)

	scheduled := notifier.NewResult(true, "http://jenkins/x", "Jenkins response: Scheduled")
	f.notifier.result = &scheduled
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodPost, path, nil)).Code)

	rejected := notifier.NewResult(false, "http://jenkins/x", "Jenkins response: No git jobs")
	f.notifier.result = &rejected
	assert.Equal(t, http.StatusNoContent, f.do(httptest.NewRequest(http.MethodPost, path, nil)).Code)

	broken := notifier.NewResult(false, "", "Unknown cloneType: svn")
	f.notifier.result = &broken
	rec := f.do(httptest.NewRequest(http.MethodPost, path, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Unknown cloneType: svn", rec.Body.String())
}

func TestCloneConfig(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, restPath("config"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"http": "https://bitbucket.example.com/scm/proj/widgets.git",
		"ssh":  "ssh://git@bitbucket.example.com:7999/proj/widgets.git",
	}, decodeBody(t, rec))

	f.host.sshEnabled = false
	rec = f.do(httptest.NewRequest(http.MethodGet, restPath("config"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decodeBody(t, rec)["ssh"])
}

func TestConditions(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, restPath("conditions"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"webhookEnabled": true, "triggerButtonEnabled": false}, decodeBody(t, rec))

	f.store.Put(events.Repository{ProjectKey: "PROJ", Slug: "widgets"}, false, settings.Settings{settings.JenkinsBase: "http://jenkins"})
	rec = f.do(httptest.NewRequest(http.MethodGet, restPath("conditions"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"webhookEnabled": false, "triggerButtonEnabled": true}, decodeBody(t, rec))
}
