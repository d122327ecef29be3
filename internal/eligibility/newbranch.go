package eligibility

import (
	"context"
	"fmt"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

// EmptyBranchFilter suppresses branch creations that carry no new commits when
// omitNewBranchWithoutChanges is set
type EmptyBranchFilter struct {
	settings settings.Service
}

// NewEmptyBranchFilter creates an EmptyBranchFilter
func NewEmptyBranchFilter(svc settings.Service) *EmptyBranchFilter {
	return &EmptyBranchFilter{settings: svc}
}

func (f *EmptyBranchFilter) Name() string { return "new-branch" }

// ShouldDeliverNotification vetoes only the branch-created kind
func (f *EmptyBranchFilter) ShouldDeliverNotification(ctx context.Context, ec *events.Context) (bool, error) {
	if ec.Event().Kind != events.KindBranchCreated {
		return true, nil
	}

	s, err := f.settings.GetSettings(ctx, ec.Repository())
	if err != nil {
		return false, fmt.Errorf("failed to read settings: %w", err)
	}
	return !s.GetBool(settings.OmitNewBranchWithoutChanges, false), nil
}
