package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/notify"
	"github.com/desertthunder/phx/internal/pacer"
	"github.com/desertthunder/phx/internal/repositories"
	"github.com/desertthunder/phx/internal/services"
	"github.com/desertthunder/phx/internal/shared"
	"github.com/desertthunder/phx/internal/storage"
	"github.com/desertthunder/phx/internal/storage/filesystem"
	"github.com/desertthunder/phx/internal/storage/objectstore"
	"github.com/desertthunder/phx/internal/storage/photostation"
	"github.com/desertthunder/phx/internal/tasks"
	"github.com/desertthunder/phx/internal/ui"
	"github.com/urfave/cli/v3"
)

const syncLogPath = "~/.phx/sync.log"

// Sync runs one pass of the sync engine against the destination named by <directory>.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	dest := cmd.StringArg("directory")
	if dest == "" {
		return fmt.Errorf("%w: <directory>", shared.ErrMissingArgument)
	}

	r.applySyncFlags(cmd)
	opts, err := r.syncOptions()
	if err != nil {
		return err
	}

	// Logs go to a file while the progress view owns the terminal.
	useView := !cmd.Bool("no-progress") && !opts.DryRun && ui.IsTerminal(r.output)
	if useView {
		fileLogger, closer, err := shared.NewFileLogger(shared.ExpandHome(syncLogPath))
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		defer closer.Close()
		fileLogger.SetLevel(r.logger.GetLevel())
		r.logger = fileLogger
	}

	store, err := r.openStorage(ctx, dest)
	if err != nil {
		return err
	}

	source, err := r.connect(ctx)
	if err != nil {
		return err
	}

	history := r.startHistory(store, opts)
	defer history.close()

	var notice func(string)
	p := pacer.New(
		pacer.WithMaxAttempts(r.config.Retry.MaxAttempts),
		pacer.WithWait(r.config.Retry.Wait()),
		pacer.WithLogger(shared.WithLogger(r.logger, "component", "pacer")),
		pacer.WithNotify(func(msg string) { notice(msg) }),
	)
	engine := tasks.NewSyncEngine(source, store, tasks.EngineOpts{
		Pacer:    p,
		Logger:   shared.WithLogger(r.logger, "component", "engine"),
		Output:   r.output,
		Recorder: history.recorder(),
	})

	var result *tasks.RunResult
	if useView {
		result, err = r.runWithView(ctx, engine, opts, store, &notice)
	} else {
		result, err = r.runPlain(ctx, engine, opts, &notice)
	}

	history.finish(result, err)
	if err != nil {
		return err
	}
	r.writeStatus("%s\n", ui.Summary(result))
	return nil
}

func (r *Runner) runPlain(ctx context.Context, engine *tasks.SyncEngine, opts tasks.Options, notice *func(string)) (*tasks.RunResult, error) {
	reporter := ui.NewReporter(r.status)
	*notice = reporter.Notice

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		reporter.Consume(progress)
		close(done)
	}()

	result, err := engine.Run(ctx, opts, progress)
	close(progress)
	<-done
	return result, err
}

func (r *Runner) runWithView(ctx context.Context, engine *tasks.SyncEngine, opts tasks.Options, store storage.Storage, notice *func(string)) (*tasks.RunResult, error) {
	title := fmt.Sprintf("phx sync → %s (%s, %s)", store, opts.Size, opts.Mode())
	model := ui.NewModel(ctx, title, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error) {
		return engine.Run(ctx, opts, progress)
	})
	*notice = model.Notice

	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("error running progress view: %w", err)
	}
	return model.Result()
}

// applySyncFlags copies explicitly set flags over the loaded configuration.
func (r *Runner) applySyncFlags(cmd *cli.Command) {
	c := r.config
	overrideString(cmd, "username", &c.ICloud.Username)
	overrideString(cmd, "password", &c.ICloud.Password)
	overrideString(cmd, "photostation", &c.PhotoStation.URL)
	overrideString(cmd, "size", &c.Sync.Size)
	overrideInt(cmd, "recent", &c.Sync.Recent)
	overrideInt(cmd, "until-found", &c.Sync.UntilFound)
	overrideBool(cmd, "download-videos", &c.Sync.DownloadVideos)
	overrideBool(cmd, "force-size", &c.Sync.ForceSize)
	overrideBool(cmd, "auto-delete", &c.Sync.AutoDelete)
	overrideBool(cmd, "only-print-filenames", &c.Sync.OnlyPrintFilenames)
	overrideBool(cmd, "keep-going", &c.Sync.KeepGoing)
	overrideBool(cmd, "convert-heic", &c.Sync.ConvertHEIC)
	overrideInt(cmd, "max-retries", &c.Retry.MaxAttempts)
	overrideInt(cmd, "retry-wait", &c.Retry.WaitSeconds)
	overrideString(cmd, "smtp-host", &c.Notification.SMTPHost)
	overrideInt(cmd, "smtp-port", &c.Notification.SMTPPort)
	overrideString(cmd, "smtp-username", &c.Notification.SMTPUsername)
	overrideString(cmd, "smtp-password", &c.Notification.SMTPPassword)
	overrideBool(cmd, "smtp-no-tls", &c.Notification.SMTPNoTLS)
	overrideString(cmd, "notification-email", &c.Notification.To)
	overrideString(cmd, "notification-email-from", &c.Notification.From)
}

// syncOptions validates the merged settings and converts them for the engine.
func (r *Runner) syncOptions() (tasks.Options, error) {
	s := r.config.Sync
	size, err := models.ParseRendition(s.Size)
	if err != nil {
		return tasks.Options{}, fmt.Errorf("%w: --size: %v", shared.ErrInvalidFlag, err)
	}
	if r.config.Retry.MaxAttempts < 1 || r.config.Retry.WaitSeconds < 0 {
		return tasks.Options{}, fmt.Errorf("%w: --max-retries must be at least 1 and --retry-wait not negative", shared.ErrInvalidFlag)
	}

	opts := tasks.Options{
		Size:           size,
		Recent:         s.Recent,
		UntilFound:     s.UntilFound,
		DownloadVideos: s.DownloadVideos,
		ForceSize:      s.ForceSize,
		AutoDelete:     s.AutoDelete,
		DryRun:         s.OnlyPrintFilenames,
		KeepGoing:      s.KeepGoing,
	}
	return opts, opts.Validate()
}

// openStorage selects the backend: Photo Station when a URL is configured, an object store for
// s3:// destinations, and the local filesystem otherwise.
func (r *Runner) openStorage(ctx context.Context, dest string) (storage.Storage, error) {
	switch {
	case r.config.PhotoStation.URL != "":
		client, err := photostation.NewClient(ctx, r.config.PhotoStation, r.httpClient)
		if err != nil {
			return nil, err
		}
		if err := client.Login(ctx); err != nil {
			return nil, fmt.Errorf("%w: photo station: %w", shared.ErrAuthFailed, err)
		}
		return photostation.New(client, dest), nil

	case objectstore.IsURL(dest):
		bucket, prefix, err := objectstore.ParseURL(dest)
		if err != nil {
			return nil, err
		}
		client, err := objectstore.NewClient(r.config.ObjectStore)
		if err != nil {
			return nil, err
		}
		return objectstore.New(client, bucket, prefix), nil

	default:
		opts := []filesystem.Option{filesystem.WithLogger(shared.WithLogger(r.logger, "component", "filesystem"))}
		if r.config.Sync.ConvertHEIC {
			opts = append(opts, filesystem.WithConverter(filesystem.NewHEICConverter(r.config.Sync.HEICConverter, nil)))
		}
		return filesystem.New(r.fs, shared.ExpandHome(dest), opts...), nil
	}
}

// connect signs in and returns the photo library. Two-step verification is completed
// interactively on a terminal; otherwise the configured recipient is alerted and the run fails.
func (r *Runner) connect(ctx context.Context) (services.Source, error) {
	if r.source != nil {
		return r.source, nil
	}

	client, err := r.signIn(ctx)
	if err != nil {
		return nil, err
	}

	if client.RequiresTwoStep() {
		if !ui.IsTerminal(r.input) {
			return nil, r.twoStepUnattended(ctx, r.config.ICloud.Username)
		}
		if err := r.verify(ctx, client, ui.NewPrompter(r.input, r.status)); err != nil {
			return nil, err
		}
	}

	return client.Photos(ctx)
}

// twoStepUnattended sends the expiry alert and returns the error that ends the run.
func (r *Runner) twoStepUnattended(ctx context.Context, username string) error {
	notifier := r.notifier
	if notifier == nil {
		notifier = notify.New(r.config.Notification, notify.WithLogger(r.logger))
	}
	if err := notifier.AuthExpired(ctx, username); err != nil {
		r.logger.Error("could not send notification", "error", err)
	}
	return fmt.Errorf("%w: run 'phx auth' on a terminal", shared.ErrTwoFactorRequired)
}

// syncHistory records a pass in the run log. Every method is a no-op without a database.
type syncHistory struct {
	repo   *repositories.RunRepository
	run    *models.SyncRun
	logger *log.Logger
	close  func()
}

func (r *Runner) startHistory(store storage.Storage, opts tasks.Options) *syncHistory {
	h := &syncHistory{logger: r.logger, close: func() {}}
	db, err := r.openDatabase()
	if err != nil {
		r.logger.Warn("run history disabled", "error", err)
		return h
	}

	repo := repositories.NewRunRepository(db)
	run := models.NewSyncRun(store.String(), store.Name(), opts.Mode(), opts.Size.String())
	if err := repo.Create(run); err != nil {
		r.logger.Warn("run history disabled", "error", err)
		db.Close()
		return h
	}

	h.repo, h.run = repo, run
	h.close = func() { db.Close() }
	return h
}

func (h *syncHistory) recorder() tasks.FailureRecorder {
	if h.repo == nil {
		return nil
	}
	return h.repo.ForRun(h.run.ID())
}

func (h *syncHistory) finish(result *tasks.RunResult, err error) {
	if h.repo == nil {
		return
	}
	var counts models.RunCounts
	stopped := false
	if result != nil {
		counts, stopped = result.Counts(), result.Stopped
	}
	h.run.Finish(counts, stopped, err)
	if uerr := h.repo.Update(h.run); uerr != nil {
		h.logger.Warn("could not record run", "error", uerr)
		return
	}
	h.logger.Debug("recorded run", "id", h.run.ID(), "status", h.run.Status(), "duration", h.run.Duration().Round(time.Millisecond))
}

func overrideString(cmd *cli.Command, name string, dst *string) {
	if cmd.IsSet(name) {
		*dst = cmd.String(name)
	}
}

func overrideInt(cmd *cli.Command, name string, dst *int) {
	if cmd.IsSet(name) {
		*dst = int(cmd.Int(name))
	}
}

func overrideBool(cmd *cli.Command, name string, dst *bool) {
	if cmd.IsSet(name) {
		*dst = cmd.Bool(name)
	}
}
