// Package notifier tells Jenkins about new commits through its notifyCommit endpoint.
package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/httpclient"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/metrics"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
	"github.com/scmhooks/jenkins-notifier/internal/worker"
)

// ScheduledPrefix starts every body Jenkins sends when it accepted the notification
const ScheduledPrefix = "Scheduled"

// maxBodySize caps how much of a Jenkins response is read
const maxBodySize = 1 << 20

// Notifier resolves Jenkins URLs and performs the notifyCommit call
type Notifier struct {
	settings settings.Service
	clients  httpclient.Factory
	resolver CloneURLResolver
	pool     *worker.Pool
	rec      metrics.Recorder
	log      *logger.Logger
}

// Option configures a Notifier
type Option func(*Notifier)

// WithRecorder reports notifications to rec
func WithRecorder(rec metrics.Recorder) Option {
	return func(n *Notifier) { n.rec = rec }
}

// WithLogger overrides the global logger
func WithLogger(l *logger.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

// New creates a Notifier. The pool runs NotifyBackground work and is owned by
// the caller, which shuts it down at teardown.
func New(svc settings.Service, clients httpclient.Factory, resolver CloneURLResolver, pool *worker.Pool, opts ...Option) *Notifier {
	n := &Notifier{
		settings: svc,
		clients:  clients,
		resolver: resolver,
		pool:     pool,
		rec:      metrics.NoopRecorder{},
		log:      logger.Get(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify looks up the hook and settings of repo and notifies Jenkins. It returns
// nil without making a call when the hook is disabled or not configured.
func (n *Notifier) Notify(ctx context.Context, repo events.Repository, ref, sha1, targetBranch string) *NotificationResult {
	hook, err := n.settings.GetRepositoryHook(ctx, repo)
	if err != nil {
		result := NewResult(false, "", fmt.Sprintf("failed to read hook state: %v", err))
		return &result
	}
	s, err := n.settings.GetSettings(ctx, repo)
	if err != nil {
		result := NewResult(false, "", fmt.Sprintf("failed to read settings: %v", err))
		return &result
	}
	if hook == nil || !hook.Enabled || s == nil {
		n.log.Debug("Hook not configured correctly or not enabled for %s, returning", repo.Key())
		return nil
	}

	result := n.NotifyWith(ctx, RequestFromSettings(repo, s, ref, sha1, targetBranch))
	return &result
}

// NotifyWith notifies Jenkins using explicit parameters. Failures never escape as
// errors: they come back as an unsuccessful result.
func (n *Notifier) NotifyWith(ctx context.Context, req Request) NotificationResult {
	start := time.Now()
	result := n.notify(ctx, req)
	n.rec.ObserveNotifyDuration(time.Since(start))

	switch {
	case result.Successful():
		n.rec.IncNotification(metrics.OutcomeScheduled)
	case result.URL() != "" && strings.HasPrefix(result.Message(), responsePrefix):
		n.rec.IncNotification(metrics.OutcomeRejected)
	default:
		n.rec.IncNotification(metrics.OutcomeError)
	}
	return result
}

const responsePrefix = "Jenkins response: "

func (n *Notifier) notify(ctx context.Context, req Request) NotificationResult {
	target, err := ResolveURL(ctx, n.resolver, req)
	if err != nil {
		n.log.Error("Unable to build Jenkins url for %s: %v", req.Repository.Key(), err)
		return NewResult(false, "", err.Error())
	}

	client, err := n.clients.GetHTTPClient(strings.HasPrefix(target, "https"), req.IgnoreCerts)
	if err != nil {
		n.log.Error("Unable to create http client for '%s': %v", target, err)
		return NewResult(false, target, err.Error())
	}
	defer func() {
		if err := client.Close(); err != nil {
			n.log.Warn("Failed to close http client: %v", err)
		}
		n.log.Debug("Successfully shutdown connection")
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		n.log.Error("Error triggering jenkins with url '%s': %v", target, err)
		return NewResult(false, target, err.Error())
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		n.log.Error("Error triggering jenkins with url '%s': %v", target, err)
		return NewResult(false, target, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		n.log.Error("Error reading jenkins response from '%s': %v", target, err)
		return NewResult(false, target, err.Error())
	}

	n.log.Debug("Successfully triggered jenkins with url '%s'", target)
	text := string(body)
	if len(body) > maxBodySize {
		text = string(body[:maxBodySize]) + fmt.Sprintf("... [truncated after %d bytes]", maxBodySize)
	}
	return NewResult(strings.HasPrefix(text, ScheduledPrefix), target, responsePrefix+text)
}

// NotifyBackground runs Notify on the worker pool and returns immediately.
// The task keeps ctx's values but not its cancellation; only a pool shutdown
// interrupts it.
func (n *Notifier) NotifyBackground(ctx context.Context, repo events.Repository, ref, sha1, targetBranch string) (*worker.Future[*NotificationResult], error) {
	delivery := uuid.NewString()
	log := n.log.With("delivery", delivery, "repository", repo.Key(), "ref", ref)
	values := context.WithoutCancel(ctx)

	return worker.Submit(n.pool, func(poolCtx context.Context) *NotificationResult {
		n.rec.AddInFlight(1)
		defer n.rec.AddInFlight(-1)

		taskCtx, cancel := context.WithCancel(values)
		defer cancel()
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()

		result := n.Notify(taskCtx, repo, ref, sha1, targetBranch)
		switch {
		case result == nil:
			log.Debug("Notification skipped, hook not enabled")
		case result.Successful():
			log.Info("Jenkins notified: %s", result.Message())
		default:
			log.Warn("Jenkins notification failed: %s", result.Message())
		}
		return result
	})
}
