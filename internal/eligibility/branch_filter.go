package eligibility

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

// Branch option modes
const (
	Whitelist = "whitelist"
	Blacklist = "blacklist"
)

// BranchFilter applies the repository's branch whitelist or blacklist to pushes
type BranchFilter struct {
	settings settings.Service
}

// NewBranchFilter creates a BranchFilter
func NewBranchFilter(svc settings.Service) *BranchFilter {
	return &BranchFilter{settings: svc}
}

func (f *BranchFilter) Name() string { return "branch" }

// ShouldDeliverNotification vetoes a push when a blacklisted branch is touched
// or when no whitelisted branch is. A push of deletions only touches no branch,
// so it passes a blacklist and fails a whitelist.
func (f *BranchFilter) ShouldDeliverNotification(ctx context.Context, ec *events.Context) (bool, error) {
	ev := ec.Event()
	if ev.Kind != events.KindPush {
		return true, nil
	}

	s, err := f.settings.GetSettings(ctx, ec.Repository())
	if err != nil {
		return false, fmt.Errorf("failed to read settings: %w", err)
	}

	option := s.GetString(settings.BranchOptions)
	if option != Whitelist && option != Blacklist {
		return true, nil
	}

	patterns := strings.Fields(s.GetString(settings.BranchOptionsBranches))
	matched := HasMatch(patterns, Branches(ev.RefChanges))

	if matched && option == Blacklist {
		return false, nil
	}
	if !matched && option == Whitelist {
		return false, nil
	}
	return true, nil
}

// HasMatch reports whether any branch matches any pattern. Matching is
// case-insensitive; a pattern ending in * matches by prefix.
func HasMatch(patterns []string, branches iter.Seq[string]) bool {
	for branch := range branches {
		branch = strings.ToLower(branch)
		for _, p := range patterns {
			p = strings.ToLower(p)
			if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasPrefix(branch, prefix) {
				return true
			}
			if p == branch {
				return true
			}
		}
	}
	return false
}
