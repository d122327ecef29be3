// Package hook turns host events into Jenkins notifications.
package hook

import (
	"context"
	"fmt"
	"strings"

	"github.com/scmhooks/jenkins-notifier/internal/eligibility"
	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/metrics"
	"github.com/scmhooks/jenkins-notifier/internal/notifier"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
	"github.com/scmhooks/jenkins-notifier/internal/worker"
)

// Dispatcher schedules a notification without waiting for it
type Dispatcher interface {
	NotifyBackground(ctx context.Context, repo events.Repository, ref, sha1, targetBranch string) (*worker.Future[*notifier.NotificationResult], error)
}

// BranchInspector tells whether a newly added branch brought no new commits
type BranchInspector interface {
	IsEmptyBranch(ctx context.Context, repo events.Repository, change events.RefChange) (bool, error)
}

// Listener reacts to host events
type Listener struct {
	chain      eligibility.Filter
	dispatcher Dispatcher
	settings   settings.Service
	branches   BranchInspector
	rec        metrics.Recorder
	log        *logger.Logger
}

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithBranchInspector lets the listener recognize branch creations without new
// commits. Without it every push stays a push.
func WithBranchInspector(b BranchInspector) ListenerOption {
	return func(l *Listener) { l.branches = b }
}

// NewListener creates a listener. rec may be nil.
func NewListener(chain eligibility.Filter, dispatcher Dispatcher, svc settings.Service, rec metrics.Recorder, opts ...ListenerOption) *Listener {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	l := &Listener{
		chain:      chain,
		dispatcher: dispatcher,
		settings:   svc,
		rec:        rec,
		log:        logger.Get(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Handle routes ev to the matching handler and returns how many notifications
// were dispatched. Unknown kinds are ignored.
func (l *Listener) Handle(ctx context.Context, ev events.Event) (int, error) {
	ev = l.classify(ctx, ev)
	l.rec.IncEventReceived(ev.Kind.String())

	switch ev.Kind {
	case events.KindPush, events.KindBranchCreated:
		return l.OnRefsChanged(ctx, ev)
	case events.KindPullRequestOpened, events.KindPullRequestReopened, events.KindPullRequestRescoped:
		return l.OnPullRequest(ctx, ev)
	case events.KindPullRequestMerged:
		return l.OnPullRequestMerged(ctx, ev)
	default:
		l.log.Debug("Ignoring %s event for %s", ev.Kind, ev.Repository.Key())
		return 0, nil
	}
}

// OnRefsChanged notifies Jenkins once per ref change of a push.
// Tag refs keep their refs/tags/ prefix.
func (l *Listener) OnRefsChanged(ctx context.Context, ev events.Event) (int, error) {
	configured, err := l.configured(ctx, ev.Repository)
	if err != nil || !configured {
		return 0, err
	}

	ec := events.NewContext(ev, ev.Repository, ev.Actor)
	dispatched := 0
	for _, change := range ev.RefChanges {
		ok, err := l.chain.ShouldDeliverNotification(ctx, ec)
		if err != nil {
			return dispatched, err
		}
		if !ok {
			continue
		}
		if err := l.dispatch(ctx, ec.Repository(), change.BranchRef(), change.ToHash, change.DisplayID); err != nil {
			return dispatched, err
		}
		dispatched++
	}
	return dispatched, nil
}

// OnPullRequest handles opened, reopened and rescoped pull requests. Settings
// belong to the target repository; the source branch is built.
func (l *Listener) OnPullRequest(ctx context.Context, ev events.Event) (int, error) {
	pr := ev.PullRequest
	if pr == nil {
		return 0, fmt.Errorf("%s event without pull request", ev.Kind)
	}

	target := pr.ToRef.Repository
	configured, err := l.configured(ctx, target)
	if err != nil || !configured {
		return 0, err
	}

	ec := events.NewContext(ev, target, ev.Actor)
	ok, err := l.chain.ShouldDeliverNotification(ctx, ec)
	if err != nil || !ok {
		return 0, err
	}

	if err := l.dispatch(ctx, target, stripBranchPrefix(pr.FromRef.ID), pr.FromRef.LatestCommit, pr.ToRef.DisplayID); err != nil {
		return 0, err
	}
	return 1, nil
}

// OnPullRequestMerged treats a merge like a push to the target branch
func (l *Listener) OnPullRequestMerged(ctx context.Context, ev events.Event) (int, error) {
	pr := ev.PullRequest
	if pr == nil {
		return 0, fmt.Errorf("%s event without pull request", ev.Kind)
	}

	sha1 := ev.MergeCommit
	if sha1 == "" {
		sha1 = pr.ToRef.LatestCommit
	}
	ev.RefChanges = []events.RefChange{{
		RefID:     pr.ToRef.ID,
		DisplayID: pr.ToRef.DisplayID,
		ToHash:    sha1,
		Type:      events.ChangeUpdate,
	}}
	ev.Repository = pr.ToRef.Repository
	return l.OnRefsChanged(ctx, ev)
}

// classify turns a push that only adds branches pointing at existing commits
// into KindBranchCreated. Lookup failures keep the push.
func (l *Listener) classify(ctx context.Context, ev events.Event) events.Event {
	if l.branches == nil || !ev.IsBranchCreation() {
		return ev
	}
	for _, change := range ev.RefChanges {
		empty, err := l.branches.IsEmptyBranch(ctx, ev.Repository, change)
		if err != nil {
			l.log.Warn("Failed to inspect new branch %s of %s: %v", change.DisplayID, ev.Repository.Key(), err)
			return ev
		}
		if !empty {
			return ev
		}
	}
	ev.Kind = events.KindBranchCreated
	return ev
}

func (l *Listener) configured(ctx context.Context, repo events.Repository) (bool, error) {
	s, err := l.settings.GetSettings(ctx, repo)
	if err != nil {
		return false, fmt.Errorf("failed to read settings of %s: %w", repo.Key(), err)
	}
	return s != nil, nil
}

func (l *Listener) dispatch(ctx context.Context, repo events.Repository, ref, sha1, targetBranch string) error {
	if _, err := l.dispatcher.NotifyBackground(ctx, repo, ref, sha1, targetBranch); err != nil {
		return fmt.Errorf("failed to schedule notification for %s: %w", repo.Key(), err)
	}
	l.log.Debug("Scheduled notification for %s ref=%s sha1=%s", repo.Key(), ref, sha1)
	return nil
}

// stripBranchPrefix drops everything up to and including refs/heads/
func stripBranchPrefix(ref string) string {
	if i := strings.Index(ref, events.RefsHeads); i >= 0 {
		return ref[i+len(events.RefsHeads):]
	}
	return ref
}
