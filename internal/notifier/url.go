package notifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

// Clone types accepted in the cloneType setting
const (
	CloneTypeHTTP   = "http"
	CloneTypeSSH    = "ssh"
	CloneTypeCustom = "custom"
)

const notifyCommitPath = "/git/notifyCommit"

// ConfigError reports repository settings that cannot produce a Jenkins URL
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// CloneURLResolver resolves the clone URLs of a repository on the host.
// SSHCloneURL requires a permission.RepoRead grant in ctx.
type CloneURLResolver interface {
	HTTPCloneURL(ctx context.Context, repo events.Repository) (string, error)
	SSHCloneURL(ctx context.Context, repo events.Repository) (string, error)
}

// Request carries everything needed to notify Jenkins once
type Request struct {
	Repository   events.Repository
	JenkinsBase  string
	IgnoreCerts  bool
	CloneType    string
	CloneURL     string // used when CloneType is custom or unset
	Ref          string
	SHA1         string
	TargetBranch string

	OmitHashCode     bool
	OmitBranchName   bool
	OmitTargetBranch bool
}

// RequestFromSettings builds a Request from stored repository settings
func RequestFromSettings(repo events.Repository, s settings.Settings, ref, sha1, targetBranch string) Request {
	return Request{
		Repository:       repo,
		JenkinsBase:      s.GetString(settings.JenkinsBase),
		IgnoreCerts:      s.GetBool(settings.IgnoreCerts, false),
		CloneType:        s.GetString(settings.CloneType),
		CloneURL:         s.GetString(settings.GitRepoURL),
		Ref:              ref,
		SHA1:             sha1,
		TargetBranch:     targetBranch,
		OmitHashCode:     s.GetBool(settings.OmitHashCode, false),
		OmitBranchName:   s.GetBool(settings.OmitBranchName, false),
		OmitTargetBranch: s.GetBool(settings.OmitTargetBranch, false),
	}
}

// ResolveURL builds the notifyCommit URL for req. Settings problems are returned
// as *ConfigError; failures of the resolver are wrapped as they come.
func ResolveURL(ctx context.Context, resolver CloneURLResolver, req Request) (string, error) {
	base := strings.TrimSuffix(strings.TrimSpace(req.JenkinsBase), "/")
	if base == "" {
		return "", &ConfigError{Setting: settings.JenkinsBase, Reason: "Jenkins base URL is not configured"}
	}

	cloneURL, err := resolveCloneURL(ctx, resolver, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString(notifyCommitPath)
	b.WriteString("?url=")
	b.WriteString(url.QueryEscape(cloneURL))
	if !req.OmitBranchName {
		b.WriteString("&branches=")
		b.WriteString(req.Ref)
	}
	if !req.OmitHashCode {
		b.WriteString("&sha1=")
		b.WriteString(req.SHA1)
	}
	// targetBranch only exists for pull requests
	if !req.OmitTargetBranch && req.TargetBranch != "" {
		b.WriteString("&targetBranch=")
		b.WriteString(req.TargetBranch)
	}
	return b.String(), nil
}

func resolveCloneURL(ctx context.Context, resolver CloneURLResolver, req Request) (string, error) {
	switch req.CloneType {
	case CloneTypeHTTP:
		if req.Repository.HTTPCloneURL != "" || resolver == nil {
			return req.Repository.HTTPCloneURL, nil
		}
		u, err := resolver.HTTPCloneURL(ctx, req.Repository)
		if err != nil {
			return "", fmt.Errorf("failed to resolve http clone url: %w", err)
		}
		return u, nil

	case CloneTypeSSH:
		if resolver == nil {
			return req.Repository.SSHCloneURL, nil
		}
		// the acting user already proved read access by pushing or opening the pull request
		u, err := permission.Do(ctx, permission.RepoRead, "resolve ssh clone url", func(ctx context.Context) (string, error) {
			return resolver.SSHCloneURL(ctx, req.Repository)
		})
		if err != nil {
			return "", fmt.Errorf("failed to resolve ssh clone url: %w", err)
		}
		return u, nil

	case CloneTypeCustom, "":
		// unset cloneType comes from settings saved before clone types existed
		return req.CloneURL, nil

	default:
		return "", &ConfigError{Setting: settings.CloneType, Reason: "Unknown cloneType: " + req.CloneType}
	}
}
