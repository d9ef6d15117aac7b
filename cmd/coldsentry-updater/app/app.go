package app

import (
	"path/filepath"

	"github.com/coldsentry-io/coldsentry/cmd/coldsentry-updater/app/options"
	"github.com/coldsentry-io/coldsentry/internal/cloud"
	"github.com/coldsentry-io/coldsentry/internal/config"
	"github.com/coldsentry-io/coldsentry/internal/hal"
	"github.com/coldsentry-io/coldsentry/internal/indicator"
	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/internal/system"
	"github.com/coldsentry-io/coldsentry/internal/updater"
	"github.com/coldsentry-io/coldsentry/internal/vcs"
	"github.com/coldsentry-io/coldsentry/pkg/app"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

const (
	commandName = "coldsentry-updater"
	commandDesc = `The ColdSentry updater runs one firmware update cycle: detect, back up,
apply, verify, and roll back if the update did not take. It always exits
zero; a handled failure is reported upward, not signalled to the timer
that scheduled it.`
)

func NewApp() *app.App {
	opts := options.NewUpdaterOptions()
	return app.NewApp(
		commandName,
		"Run one firmware update cycle",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithLogOptions(opts.Log),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.UpdaterOptions) app.RunFunc {
	return func() error {
		ctx := app.SetupSignalContext()

		r := runner.New()
		git := vcs.NewGit(r, opts.InstallDir)
		git.RepositoryURL = opts.RepositoryURL
		git.Branch = opts.Branch
		if err := git.EnsureRepository(ctx); err != nil {
			// Without a repository there is nothing to update; the next
			// timer run retries.
			log.Error(err, "cannot ensure firmware repository")
			return nil
		}

		cfg := config.New(opts.ConfigPath)
		client := cloud.NewClient(opts.APIBaseURL)
		if data, found, err := cfg.Load(); err == nil && found {
			client.SetToken(data.APIToken)
		}

		engine := updater.New(
			r,
			git,
			system.NewSystemd(r),
			updater.NewHistory(opts.HistoryPath),
			updater.NewBackupManager(r, opts.InstallDir, opts.BackupDir),
			cfg,
		)
		engine.Reporter = client
		engine.Remote = "origin"
		engine.Branch = opts.Branch
		engine.InstallScript = []string{opts.InstallScript}
		engine.Units = system.NewUnitInstaller(r, filepath.Join(opts.InstallDir, "system"))
		engine.DeviceInfoPath = opts.DeviceInfoPath
		engine.Grace = opts.Grace

		coord := newCoordinator(opts)
		if coord != nil {
			defer coord.Close() //nolint:errcheck
			if _, pending := engine.CheckForUpdate(ctx); pending {
				if err := coord.SetState(indicator.StateFirmwareUpdate); err != nil {
					log.Warn("cannot show update pattern", "err", err)
				}
			}
		}

		res := engine.RunUpdateCycle(ctx)
		if !res.Success {
			log.Warn("update cycle failed", "tier", int(res.Tier), "errors", len(res.Errors))
		}
		return nil
	}
}

func newCoordinator(opts *options.UpdaterOptions) *indicator.Coordinator {
	h, err := hal.New()
	if err != nil {
		log.Warn("cannot open hardware, running without the indicator", "err", err)
		return nil
	}
	return indicator.NewCoordinator(h, opts.IndicatorStatePath)
}
