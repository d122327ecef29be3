package eligibility

import (
	"context"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
)

// RescopeFilter suppresses rescopes where the source side did not move
type RescopeFilter struct{}

// NewRescopeFilter creates a RescopeFilter
func NewRescopeFilter() *RescopeFilter {
	return &RescopeFilter{}
}

func (f *RescopeFilter) Name() string { return "rescope" }

// ShouldDeliverNotification vetoes a rescope whose previous from-hash equals the
// latest commit of the from-ref
func (f *RescopeFilter) ShouldDeliverNotification(_ context.Context, ec *events.Context) (bool, error) {
	ev := ec.Event()
	if ev.Kind != events.KindPullRequestRescoped || ev.PullRequest == nil {
		return true, nil
	}

	if ev.PreviousFromHash == ev.PullRequest.FromRef.LatestCommit {
		logger.Get().Debug("Ignoring rescope of pull request %d not coming from the from-side", ev.PullRequest.ID)
		return false, nil
	}
	return true, nil
}
