package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scmhooks/jenkins-notifier/internal/hook"
	"github.com/scmhooks/jenkins-notifier/internal/server"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
	"github.com/scmhooks/jenkins-notifier/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and REST resource",
		Long: `Receive Bitbucket Server webhooks and notify Jenkins in the background.

The service:
  - Accepts webhooks on POST /webhook (X-Event-Key selects the event type)
  - Runs the eligibility filters for every event
  - Calls Jenkins' notifyCommit endpoint from a background worker
  - Serves the Jenkins REST resource under /rest/jenkins/latest
  - Reloads the settings file when it changes

Example:
  jenkins-notifier serve --config /etc/jenkins-notifier/config.yaml
`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Running preflight checks...")
	if err := runPreflightChecks(ctx, a); err != nil {
		return fmt.Errorf("preflight checks failed: %w", err)
	}
	log.Info("All preflight checks passed")

	if a.cfg.Settings.Watch {
		watcher, err := settings.NewWatcher(a.store, settings.WithReloadHook(func(err error) {
			if err != nil {
				log.Error("Failed to reload settings, keeping previous: %v", err)
				return
			}
			log.Info("Reloaded settings from %s", a.store.Path())
		}))
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch settings: %w", err)
		}
		defer watcher.Stop()
	}

	listener := hook.NewListener(a.chain, a.notifier, a.store, a.recorder, hook.WithBranchInspector(a.host))
	srvCfg := server.Config{
		Addr:     a.cfg.Server.Addr,
		Events:   listener,
		Notifier: a.notifier,
		Host:     a.host,
		Settings: a.store,
		Security: server.NewSecurityValidator(a.cfg.Server.WebhookSecret, a.cfg.Server.RateLimitPerMin),
		Logger:   log,
	}
	if a.prom != nil {
		srvCfg.MetricsPath = a.cfg.Metrics.Path
		srvCfg.MetricsHandler = a.prom.Handler()
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "Listen:       %s\n", a.cfg.Server.Addr)
	fmt.Fprintf(os.Stderr, "Bitbucket:    %s\n", a.cfg.Bitbucket.URL)
	fmt.Fprintf(os.Stderr, "Settings:     %s (watch=%t)\n", a.cfg.Settings.File, a.cfg.Settings.Watch)
	fmt.Fprintf(os.Stderr, "Signatures:   %t\n", a.cfg.Server.WebhookSecret != "")
	fmt.Fprintln(os.Stderr, "")

	if err := srv.Run(ctx); err != nil {
		return err
	}

	log.Info("Shutting down, interrupting %d background notification(s)...", a.pool.Active())
	if err := interruptPool(a.pool, a.cfg.Worker.ShutdownTimeout); err != nil {
		log.Warn("Background notifications did not exit: %v", err)
	}
	return nil
}

// interruptPool cancels running notifications, then waits up to timeout for
// their goroutines to return
func interruptPool(pool *worker.Pool, timeout time.Duration) error {
	pool.ShutdownNow()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return pool.Stop(ctx)
}

// runPreflightChecks verifies the host is reachable before accepting webhooks
func runPreflightChecks(ctx context.Context, a *app) error {
	step := a.log.Step("Checking Bitbucket connectivity")
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.host.Ping(ctx); err != nil {
		step.Fail(err)
		return err
	}
	step.Complete()
	return nil
}
