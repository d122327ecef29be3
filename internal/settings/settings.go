// Package settings holds per-repository hook configuration and the services that look it up.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/scmhooks/jenkins-notifier/internal/events"
)

// Setting keys stored for each repository
const (
	JenkinsBase                 = "jenkinsBase"
	CloneType                   = "cloneType"
	GitRepoURL                  = "gitRepoUrl"
	IgnoreCerts                 = "ignoreCerts"
	OmitHashCode                = "omitHashCode"
	OmitBranchName              = "omitBranchName"
	OmitTargetBranch            = "omitTargetBranch"
	IgnoreCommitters            = "ignoreCommitters"
	BranchOptions               = "branchOptions"
	BranchOptionsBranches       = "branchOptionsBranches"
	OmitNewBranchWithoutChanges = "omitNewBranchWithoutChanges"
	OmitTriggerBuildButton      = "omitTriggerBuildButton"
)

// Settings is the flat key/value configuration of one repository hook
type Settings map[string]any

// GetString returns the value of key as a string, or "" when unset
func (s Settings) GetString(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// GetBool returns the value of key as a bool, or def when unset or unparseable
func (s Settings) GetBool(key string, def bool) bool {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on":
			return true
		case "off", "":
			return false
		}
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Hook describes whether the integration is installed and enabled on a repository
type Hook struct {
	Key     string
	Enabled bool
}

// Service looks up hook state and settings for a repository.
// Both methods return nil without error when nothing is configured.
type Service interface {
	GetRepositoryHook(ctx context.Context, repo events.Repository) (*Hook, error)
	GetSettings(ctx context.Context, repo events.Repository) (Settings, error)
}

// ValidationError reports a settings field that failed validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateSettings checks the settings an administrator saves for a repository
func ValidateSettings(s Settings) error {
	if strings.TrimSpace(s.GetString(JenkinsBase)) == "" {
		return &ValidationError{Field: JenkinsBase, Message: "The url for your Jenkins instance is required."}
	}

	switch s.GetString(BranchOptions) {
	case "", "whitelist", "blacklist":
	default:
		return &ValidationError{Field: BranchOptions, Message: "must be whitelist or blacklist"}
	}

	return nil
}
