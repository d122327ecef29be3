package eligibility

import (
	"context"
	"fmt"
	"strings"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

// IgnoreCommittersFilter suppresses events raised by users on the ignore list
type IgnoreCommittersFilter struct {
	settings settings.Service
}

// NewIgnoreCommittersFilter creates an IgnoreCommittersFilter
func NewIgnoreCommittersFilter(svc settings.Service) *IgnoreCommittersFilter {
	return &IgnoreCommittersFilter{settings: svc}
}

func (f *IgnoreCommittersFilter) Name() string { return "ignore-committers" }

// ShouldDeliverNotification compares the acting user against the comma separated
// ignoreCommitters setting, trimmed and case-insensitive
func (f *IgnoreCommittersFilter) ShouldDeliverNotification(ctx context.Context, ec *events.Context) (bool, error) {
	username := ec.Username()
	if username == "" {
		return true, nil
	}

	s, err := f.settings.GetSettings(ctx, ec.Repository())
	if err != nil {
		return false, fmt.Errorf("failed to read settings: %w", err)
	}

	ignored := s.GetString(settings.IgnoreCommitters)
	if ignored == "" {
		return true, nil
	}

	for _, committer := range strings.Split(ignored, ",") {
		committer = strings.TrimSpace(committer)
		if committer != "" && strings.EqualFold(committer, username) {
			logger.Get().Debug("Ignoring event due to ignore committer %s", committer)
			return false, nil
		}
	}
	return true, nil
}
