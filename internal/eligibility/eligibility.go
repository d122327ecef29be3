// Package eligibility decides whether a host event should produce a Jenkins notification.
//
// Each Filter vetoes only when it can prove a negative and passes through every
// event kind it does not handle. A Chain runs filters in registration order and
// stops at the first veto.
package eligibility

import (
	"context"
	"fmt"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/metrics"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

// Filter answers whether a notification may proceed for one event
type Filter interface {
	ShouldDeliverNotification(ctx context.Context, ec *events.Context) (bool, error)
}

// FilterFunc adapts a function to Filter
type FilterFunc func(ctx context.Context, ec *events.Context) (bool, error)

// ShouldDeliverNotification calls f
func (f FilterFunc) ShouldDeliverNotification(ctx context.Context, ec *events.Context) (bool, error) {
	return f(ctx, ec)
}

// Named is implemented by filters that report a name for logs and metrics
type Named interface {
	Name() string
}

// MergeStatus is the answer of the mergeability oracle
type MergeStatus struct {
	CanMerge   bool
	Conflicted bool
	Vetoes     []string
}

// IsConflicted reports whether merging would produce a conflict
func (s MergeStatus) IsConflicted() bool {
	return s.Conflicted
}

// MergeChecker asks the host whether a pull request can be merged
type MergeChecker interface {
	CanMerge(ctx context.Context, repo events.Repository, pullRequestID int64) (MergeStatus, error)
}

// Chain is an ordered, short-circuiting conjunction of filters
type Chain struct {
	filters []Filter
	rec     metrics.Recorder
}

// NewChain creates a chain evaluating filters in the given order
func NewChain(rec metrics.Recorder, filters ...Filter) *Chain {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Chain{filters: filters, rec: rec}
}

// NewDefaultChain registers the standard filters, cheap string checks before the
// mergeability check that calls the host
func NewDefaultChain(svc settings.Service, merges MergeChecker, rec metrics.Recorder) *Chain {
	return NewChain(rec,
		NewIgnoreCommittersFilter(svc),
		NewBranchFilter(svc),
		NewEmptyBranchFilter(svc),
		NewRescopeFilter(),
		NewMergeableFilter(merges),
	)
}

// ShouldDeliverNotification returns false as soon as one filter vetoes.
// A filter error stops evaluation and is returned to the caller.
func (c *Chain) ShouldDeliverNotification(ctx context.Context, ec *events.Context) (bool, error) {
	for i, f := range c.filters {
		ok, err := f.ShouldDeliverNotification(ctx, ec)
		if err != nil {
			return false, fmt.Errorf("eligibility filter %s failed: %w", filterName(f, i), err)
		}
		if !ok {
			name := filterName(f, i)
			c.rec.IncFilterVeto(name)
			logger.Get().Debug("Notification for %s (%s) suppressed by %s filter",
				ec.Repository().Key(), ec.Event().Kind, name)
			return false, nil
		}
	}
	return true, nil
}

// Len returns the number of registered filters
func (c *Chain) Len() int {
	return len(c.filters)
}

func filterName(f Filter, i int) string {
	if n, ok := f.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("#%d", i)
}
