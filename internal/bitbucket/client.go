// Package bitbucket is a small client for the Bitbucket Server REST API covering
// what the notifier needs from its host: clone links, default branches and
// pull request merge checks.
package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"

	"github.com/scmhooks/jenkins-notifier/internal/eligibility"
	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
)

var (
	// ErrNotFound is returned when the host answers 404
	ErrNotFound = errors.New("not found")
	// ErrSSHDisabled is returned when SSH clone URLs are requested but SSH access is off
	ErrSSHDisabled = errors.New("ssh access is disabled on the host")
)

const (
	apiPrefix         = "/rest/api/1.0"
	branchUtilsPrefix = "/rest/branch-utils/1.0"
)

// Options configures a Client
type Options struct {
	BaseURL  string
	Username string
	Password string
	// Token is a personal access token; when set it replaces basic auth
	Token      string
	SSHEnabled bool
	Timeout    time.Duration
	CacheTTL   time.Duration
	CacheSize  int
}

// Client handles communication with the Bitbucket Server REST API
type Client struct {
	baseURL    string
	username   string
	password   string
	sshEnabled bool
	httpClient *http.Client

	repos    *expirable.LRU[string, *RepositoryInfo]
	branches *expirable.LRU[string, *Branch]
}

// NewClient creates a new Bitbucket REST API client
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	httpClient := &http.Client{Timeout: timeout}
	if opts.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), src)
		httpClient.Timeout = timeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		username:   opts.Username,
		password:   opts.Password,
		sshEnabled: opts.SSHEnabled,
		httpClient: httpClient,
		repos:      expirable.NewLRU[string, *RepositoryInfo](size, nil, ttl),
		branches:   expirable.NewLRU[string, *Branch](size, nil, ttl),
	}
}

// SSHEnabled reports whether SSH access is enabled on the host
func (c *Client) SSHEnabled() bool {
	return c.sshEnabled
}

// Ping checks if the host is reachable and credentials are valid
func (c *Client) Ping(ctx context.Context) error {
	var props struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, apiPrefix+"/application-properties", &props); err != nil {
		return fmt.Errorf("failed to connect to bitbucket: %w", err)
	}
	return nil
}

// Repository retrieves repository details including clone links
func (c *Client) Repository(ctx context.Context, projectKey, slug string) (*RepositoryInfo, error) {
	key := projectKey + "/" + slug
	if info, ok := c.repos.Get(key); ok {
		return info, nil
	}

	var info RepositoryInfo
	path := fmt.Sprintf("%s/projects/%s/repos/%s", apiPrefix, url.PathEscape(projectKey), url.PathEscape(slug))
	if err := c.get(ctx, path, &info); err != nil {
		return nil, fmt.Errorf("failed to get repository %s: %w", key, err)
	}

	c.repos.Add(key, &info)
	return &info, nil
}

// HTTPCloneURL returns the HTTP clone URL of repo
func (c *Client) HTTPCloneURL(ctx context.Context, repo events.Repository) (string, error) {
	info, err := c.Repository(ctx, repo.ProjectKey, repo.Slug)
	if err != nil {
		return "", err
	}
	return info.CloneURL("http"), nil
}

// SSHCloneURL returns the SSH clone URL of repo. It requires a RepoRead grant in ctx.
func (c *Client) SSHCloneURL(ctx context.Context, repo events.Repository) (string, error) {
	if err := permission.Require(ctx, permission.RepoRead); err != nil {
		return "", err
	}
	if !c.sshEnabled {
		return "", ErrSSHDisabled
	}
	info, err := c.Repository(ctx, repo.ProjectKey, repo.Slug)
	if err != nil {
		return "", err
	}
	return info.CloneURL("ssh"), nil
}

// DefaultBranch returns the default branch of repo
func (c *Client) DefaultBranch(ctx context.Context, repo events.Repository) (*Branch, error) {
	key := repo.Key()
	if b, ok := c.branches.Get(key); ok {
		return b, nil
	}

	var b Branch
	path := fmt.Sprintf("%s/projects/%s/repos/%s/branches/default", apiPrefix,
		url.PathEscape(repo.ProjectKey), url.PathEscape(repo.Slug))
	if err := c.get(ctx, path, &b); err != nil {
		return nil, fmt.Errorf("failed to get default branch of %s: %w", key, err)
	}

	c.branches.Add(key, &b)
	return &b, nil
}

// CanMerge asks the host whether a pull request can be merged
func (c *Client) CanMerge(ctx context.Context, repo events.Repository, pullRequestID int64) (eligibility.MergeStatus, error) {
	var m MergeInfo
	path := fmt.Sprintf("%s/projects/%s/repos/%s/pull-requests/%d/merge", apiPrefix,
		url.PathEscape(repo.ProjectKey), url.PathEscape(repo.Slug), pullRequestID)
	if err := c.get(ctx, path, &m); err != nil {
		return eligibility.MergeStatus{}, fmt.Errorf("failed to check merge of pull request %d: %w", pullRequestID, err)
	}

	status := eligibility.MergeStatus{CanMerge: m.CanMerge, Conflicted: m.Conflicted}
	for _, v := range m.Vetoes {
		status.Vetoes = append(status.Vetoes, v.SummaryMessage)
	}
	return status, nil
}

// IsEmptyBranch reports whether a newly added branch points at a commit that
// another branch already contains, i.e. the branch brought no new commits
func (c *Client) IsEmptyBranch(ctx context.Context, repo events.Repository, change events.RefChange) (bool, error) {
	var page BranchPage
	path := fmt.Sprintf("%s/projects/%s/repos/%s/branches/info/%s?limit=10", branchUtilsPrefix,
		url.PathEscape(repo.ProjectKey), url.PathEscape(repo.Slug), url.PathEscape(change.ToHash))
	if err := c.get(ctx, path, &page); err != nil {
		return false, fmt.Errorf("failed to list branches containing %s: %w", change.ToHash, err)
	}

	for _, b := range page.Values {
		if b.ID != change.RefID {
			return true, nil
		}
	}
	return false, nil
}

// get performs an authenticated GET and decodes the JSON body into out
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("authentication failed: invalid credentials")
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("bitbucket API returned status %d: %s", resp.StatusCode, apiErrorMessage(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// apiErrorMessage extracts the first error message of a Bitbucket error body
func apiErrorMessage(body []byte) string {
	var e struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &e); err == nil && len(e.Errors) > 0 {
		return e.Errors[0].Message
	}
	return string(body)
}
