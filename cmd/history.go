package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/phx/internal/formatter"
	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/repositories"
	"github.com/desertthunder/phx/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recorded runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(map[string]any{"limit": int(cmd.Int("limit"))})
	if err != nil {
		return err
	}

	data, err := formatter.Render(runs, format)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(data, path); err != nil {
			return err
		}
		r.logger.Info("history written", "path", path, "runs", len(runs))
		return nil
	}
	_, err = r.output.Write(data)
	return err
}

// HistoryShow prints one run and the items it abandoned.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: <run-id>", shared.ErrMissingArgument)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewRunRepository(db)
	run, err := repo.Get(id)
	if err != nil {
		return err
	}
	failures, err := repo.Failures(id)
	if err != nil {
		return err
	}

	data, err := formatter.RunsToText([]*models.SyncRun{run})
	if err != nil {
		return err
	}
	r.writePlain("%s", data)

	if run.ErrorMessage() != "" {
		r.writePlain("\nError: %s\n", run.ErrorMessage())
	}
	if len(failures) == 0 {
		return nil
	}
	r.writePlain("\nCould not process %d items:\n", len(failures))
	for _, f := range failures {
		r.writePlain("  - %s: %s\n", f.Filename, f.Reason)
	}
	return nil
}
