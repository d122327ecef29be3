package eligibility

import (
	"context"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
)

// MergeableFilter suppresses open pull requests that would not merge cleanly,
// and rescopes that did not come from the source branch
type MergeableFilter struct {
	merges MergeChecker
}

// NewMergeableFilter creates a MergeableFilter. A nil checker skips the conflict check.
func NewMergeableFilter(merges MergeChecker) *MergeableFilter {
	return &MergeableFilter{merges: merges}
}

func (f *MergeableFilter) Name() string { return "mergeable" }

// ShouldDeliverNotification handles opened, reopened and rescoped pull requests.
// If the oracle fails the notification is let through.
func (f *MergeableFilter) ShouldDeliverNotification(ctx context.Context, ec *events.Context) (bool, error) {
	ev := ec.Event()
	switch ev.Kind {
	case events.KindPullRequestOpened, events.KindPullRequestReopened, events.KindPullRequestRescoped:
	default:
		return true, nil
	}

	pr := ev.PullRequest
	if pr == nil || pr.State != events.StateOpen {
		return true, nil
	}

	if ev.Kind == events.KindPullRequestRescoped && ev.PreviousFromHash == pr.FromRef.LatestCommit {
		logger.Get().Debug("Ignoring rescope of pull request %d not coming from the from-side", pr.ID)
		return false, nil
	}

	if f.merges == nil {
		return true, nil
	}

	status, err := f.merges.CanMerge(ctx, ec.Repository(), pr.ID)
	if err != nil {
		logger.Get().Warn("Merge check for pull request %d in %s failed, delivering anyway: %v",
			pr.ID, ec.Repository().Key(), err)
		return true, nil
	}
	if status.IsConflicted() {
		logger.Get().Debug("Ignoring pull request %d due to conflicts in merge", pr.ID)
		return false, nil
	}
	return true, nil
}
