// Package cli wires the packages into the gptdiff command tree.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ernop/gpt-webdiff/internal/artifact"
	"github.com/ernop/gpt-webdiff/internal/baseline"
	"github.com/ernop/gpt-webdiff/internal/config"
	"github.com/ernop/gpt-webdiff/internal/drift"
	"github.com/ernop/gpt-webdiff/internal/extract"
	"github.com/ernop/gpt-webdiff/internal/fetch"
	"github.com/ernop/gpt-webdiff/internal/logger"
	"github.com/ernop/gpt-webdiff/internal/notify"
	"github.com/ernop/gpt-webdiff/internal/oracle"
	"github.com/ernop/gpt-webdiff/internal/registry"
	"github.com/ernop/gpt-webdiff/internal/runner"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
	"github.com/ernop/gpt-webdiff/internal/summarize"
	"github.com/ernop/gpt-webdiff/internal/sweep"
	"github.com/ernop/gpt-webdiff/internal/templates"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitConfig   = 3
	ExitNotFound = 4
	ExitBusy     = 5
	ExitCrash    = 70
)

// ErrConfig marks configuration problems.
var ErrConfig = errors.New("configuration error")

// ExitCode maps an error returned by the command tree to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig), errors.Is(err, oracle.ErrNoAPIKey), errors.Is(err, notify.ErrNotConfigured):
		return ExitConfig
	case errors.Is(err, registry.ErrJobNotFound),
		errors.Is(err, snapshot.ErrSnapshotNotFound),
		errors.Is(err, artifact.ErrNoArtifact):
		return ExitNotFound
	case errors.Is(err, sweep.ErrSweepInProgress):
		return ExitBusy
	default:
		return ExitFailure
	}
}

// App holds the process context of one invocation. The override fields
// replace the network-facing collaborators; tests set them.
type App struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Environ []string
	WorkDir string

	Oracle    oracle.Oracle
	Fetcher   snapshot.Fetcher
	Transport notify.Transport
	Now       func() time.Time

	home       string
	configFile string
	logLevel   string

	svc *Services
}

// Services are the components built from the configuration.
type Services struct {
	Config    *config.Config
	Log       logger.Logger
	Templates templates.Templates
	Registry  *registry.Registry
	Snapshots *snapshot.Store
	State     *baseline.Store
	Artifacts *artifact.Store
	Fetcher   snapshot.Fetcher
	Extractor *extract.Extractor
	Detector  *drift.Detector
	Renderer  *notify.Renderer
	Mailer    *notify.Mailer
	Now       func() time.Time

	oracle  oracle.Oracle
	gateway *summarize.Gateway
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "gptdiff",
		Short:         "Monitor web pages and email summaries of what changed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.svc != nil {
				_ = app.svc.Log.Sync()
			}
		},
	}
	root.SetOut(app.Stdout)
	root.SetErr(app.Stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&app.home, "home", "", "base directory for job files (default $GPTDIFF_HOME or the working directory)")
	flags.StringVar(&app.configFile, "config", "", "config file (default <home>/gptdiff.yaml)")
	flags.StringVar(&app.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newAddCommand(app),
		newRemoveCommand(app),
		newFrequencyCommand(app, "bump", "inc_frequency", registry.Increase),
		newFrequencyCommand(app, "unbump", "dec_frequency", registry.Decrease),
		newListCommand(app),
		newSaveSortedCommand(app),
		newSearchCommand(app),
		newRunCommand(app),
		newTestCommand(app),
		newCheckCronCommand(app),
		newWatchCommand(app),
		newDiffCommand(app),
		newReparseCommand(app),
		newEmailBackupCommand(app),
	)
	return root
}

// Services returns the components built by the last setup, or nil.
func (a *App) Services() *Services {
	return a.svc
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// setup loads the configuration and builds every component that needs
// no credentials. The oracle is built on first use.
func (a *App) setup() error {
	cfg, err := config.Load(config.Options{
		Home:       a.home,
		ConfigFile: a.configFile,
		Environ:    a.Environ,
		WorkDir:    a.WorkDir,
	})
	if err != nil {
		return errors.Mark(err, ErrConfig)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return errors.Mark(err, ErrConfig)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Path(cfg.LogFile),
	})
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create logger"), ErrConfig)
	}

	tmpl, err := templates.Load(cfg.Path(cfg.TemplatesFile))
	if err != nil {
		return errors.Mark(err, ErrConfig)
	}
	renderer, err := notify.NewRenderer(tmpl)
	if err != nil {
		return errors.Mark(err, ErrConfig)
	}

	svc := &Services{
		Config:    cfg,
		Log:       log,
		Templates: tmpl,
		Registry:  registry.NewRegistry(cfg.Path(cfg.RegistryFile), cfg.Path(cfg.BackupDir), log),
		Snapshots: snapshot.NewStore(cfg.Path(cfg.DataDir)),
		State:     baseline.NewStore(cfg.Path(cfg.StateFile)),
		Artifacts: artifact.NewStore(cfg.Path(cfg.ResponsesDir)),
		Extractor: extract.New(),
		Renderer:  renderer,
		oracle:    a.Oracle,
	}
	svc.Detector = drift.NewDetector(svc.Extractor)

	svc.Fetcher = a.Fetcher
	if svc.Fetcher == nil {
		svc.Fetcher = fetch.New(
			fetch.WithUserAgent(cfg.Fetch.UserAgent),
			fetch.WithTimeout(cfg.Fetch.Timeout),
			fetch.WithMaxBytes(cfg.Fetch.MaxBytes),
			fetch.WithLogger(log),
		)
	}

	svc.Mailer = notify.NewMailer(notify.Config{
		To:       cfg.Email.To,
		From:     cfg.Email.From,
		Login:    cfg.Email.Login,
		Password: cfg.Email.Password,
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Enabled:  cfg.Email.Enabled,
		Dir:      cfg.Path(cfg.EmailsDir),
	}, log, a.Transport)

	if a.Now != nil {
		svc.Registry.Now = a.Now
		svc.Snapshots.Now = a.Now
		svc.State.Now = a.Now
		svc.Mailer.Now = a.Now
		svc.Now = a.Now
	}

	a.svc = svc
	return nil
}

// Gateway returns the summarization gateway, building the oracle client
// on first use.
func (s *Services) Gateway() (*summarize.Gateway, error) {
	if s.gateway != nil {
		return s.gateway, nil
	}
	if s.oracle == nil {
		o, err := oracle.New(oracle.Config{
			Provider:  s.Config.Oracle.Provider,
			APIKey:    s.Config.Oracle.APIKey,
			Model:     s.Config.Oracle.Model,
			BaseURL:   s.Config.Oracle.BaseURL,
			MaxTokens: s.Config.Oracle.MaxTokens,
			Timeout:   s.Config.Oracle.Timeout,
		})
		if err != nil {
			return nil, err
		}
		s.oracle = o
	}

	g, err := summarize.NewGateway(s.oracle, s.Artifacts, s.Templates,
		summarize.WithBudget(s.Config.ContextBudget),
		summarize.WithFatalOnParseFailure(s.Config.FatalOnParseFailure),
		summarize.WithLogger(s.Log),
	)
	if err != nil {
		return nil, errors.Mark(err, ErrConfig)
	}
	s.gateway = g
	return g, nil
}

// Runner returns a job runner.
func (s *Services) Runner() (*runner.Runner, error) {
	g, err := s.Gateway()
	if err != nil {
		return nil, err
	}
	return runner.New(runner.Deps{
		Jobs:       s.Registry,
		Snapshots:  s.Snapshots,
		State:      s.State,
		Fetcher:    s.Fetcher,
		Detector:   s.Detector,
		Summarizer: g,
		Renderer:   s.Renderer,
		Sender:     s.Mailer,
	}, s.Config.Threshold, s.Log), nil
}

// Sweeper returns a scheduler sweep over the registry.
func (s *Services) Sweeper() (*sweep.Sweeper, error) {
	r, err := s.Runner()
	if err != nil {
		return nil, err
	}
	sw := sweep.New(s.Registry, s.Snapshots, r, s.Config.Path(s.Config.LockFile), s.Log)
	if s.Now != nil {
		sw.Now = s.Now
	}
	return sw, nil
}

// ReportCrash emails the operator about an unexpected failure. It is
// best effort: errors are logged and dropped.
func (a *App) ReportCrash(ctx context.Context, command string, cause error) {
	if a.svc == nil {
		return
	}
	msg, err := a.svc.Renderer.RenderFailure(command, cause, a.now())
	if err == nil {
		err = a.svc.Mailer.Send(ctx, msg)
	}
	if err != nil {
		a.svc.Log.Warn("Could not send crash report", logger.Error(err))
	}
}
