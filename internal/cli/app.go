package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/scmhooks/jenkins-notifier/internal/bitbucket"
	"github.com/scmhooks/jenkins-notifier/internal/config"
	"github.com/scmhooks/jenkins-notifier/internal/eligibility"
	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/httpclient"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/metrics"
	"github.com/scmhooks/jenkins-notifier/internal/notifier"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
	"github.com/scmhooks/jenkins-notifier/internal/worker"
)

// app wires the components every command shares
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *settings.FileStore
	host     *bitbucket.Client
	pool     *worker.Pool
	recorder metrics.Recorder
	prom     *metrics.PrometheusRecorder
	notifier *notifier.Notifier
	chain    *eligibility.Chain
}

// newApp loads configuration and builds the shared components. The returned
// app owns a worker pool that must be released with close.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := ConfigureGlobalLogger(cfg); err != nil {
		return nil, err
	}

	store, err := settings.NewFileStore(cfg.Settings.File)
	if err != nil {
		return nil, err
	}

	keys, err := httpclient.LoadKeyStore(cfg.Jenkins.CertFile, cfg.Jenkins.KeyFile)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      logger.Get(),
		store:    store,
		recorder: metrics.NoopRecorder{},
		host: bitbucket.NewClient(bitbucket.Options{
			BaseURL:    cfg.Bitbucket.URL,
			Username:   cfg.Bitbucket.User,
			Password:   cfg.Bitbucket.Password,
			Token:      cfg.Bitbucket.Token,
			SSHEnabled: cfg.Bitbucket.SSHEnabled,
			CacheTTL:   cfg.Bitbucket.CacheTTL,
			CacheSize:  cfg.Bitbucket.CacheSize,
		}),
		pool: worker.NewPool("jenkins-notifier"),
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.prom = metrics.NewPrometheusRecorder(reg)
		a.recorder = a.prom
	}

	clients := httpclient.NewFactory(httpclient.Options{Timeout: cfg.Jenkins.Timeout, KeyStore: keys})
	a.notifier = notifier.New(store, clients, a.host, a.pool,
		notifier.WithRecorder(a.recorder), notifier.WithLogger(a.log))
	a.chain = eligibility.NewDefaultChain(store, a.host, a.recorder)
	return a, nil
}

// close cancels background notifications still running and flushes the logger
func (a *app) close() {
	a.pool.ShutdownNow()
	a.log.Close()
}

// repository resolves project/slug on the host; the command line acts as repository admin
func (a *app) repository(ctx context.Context, project, slug string) (context.Context, events.Repository, error) {
	ctx = permission.With(ctx, permission.RepoAdmin, "command line")
	info, err := a.host.Repository(ctx, project, slug)
	if err != nil {
		return ctx, events.Repository{}, err
	}
	return ctx, info.ToRepository(), nil
}
