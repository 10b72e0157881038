package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestRunRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewSyncRun("/photos", "filesystem", "all", "original")

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if run.ID() == "" {
			t.Error("run ID should be set after creation")
		}
		if run.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", run.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewSyncRun("/photos", "filesystem", "recent:10", "medium")
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		got, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Destination() != "/photos" || got.Mode() != "recent:10" || got.Size() != "medium" {
			t.Errorf("unexpected run fields: %s %s %s", got.Destination(), got.Mode(), got.Size())
		}
		if got.Status() != models.RunRunning {
			t.Errorf("expected running status, got %s", got.Status())
		}
		if got.Counts().Total != -1 {
			t.Errorf("expected unknown total, got %d", got.Counts().Total)
		}
		if got.FinishedAt() != nil {
			t.Error("running run should have no finish time")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewRunRepository(db).Get("missing")
		if !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewSyncRun("s3://bucket/photos", "objectstore", "until-found:5", "original")
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		counts := models.RunCounts{Total: 20, Processed: 9, Transferred: 4, Existing: 5, Bytes: 4096}
		run.Finish(counts, true, nil)
		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Status() != models.RunStopped {
			t.Errorf("expected stopped status, got %s", got.Status())
		}
		if !got.StoppedEarly() {
			t.Error("expected stopped_early to be persisted")
		}
		if got.Counts() != counts {
			t.Errorf("counts mismatch: got %+v, want %+v", got.Counts(), counts)
		}
		if got.FinishedAt() == nil {
			t.Error("expected finish time to be persisted")
		}
	})

	t.Run("UpdateFailed", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewSyncRun("/photos", "filesystem", "all", "original")
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		run.Finish(models.RunCounts{Total: 3}, false, shared.ErrSessionExpired)
		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, _ := repo.Get(run.ID())
		if got.Status() != models.RunFailed || got.ErrorMessage() != shared.ErrSessionExpired.Error() {
			t.Errorf("unexpected failure state: %s %q", got.Status(), got.ErrorMessage())
		}
	})

	t.Run("UpdateValidation", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		now := time.Now()
		run := models.RestoreSyncRun("id", 1, "/photos", "filesystem", "all", "original", models.RunCompleted,
			models.RunCounts{}, false, "", now, nil, now, now, nil)
		if err := NewRunRepository(db).Update(run); err == nil {
			t.Fatal("expected validation error for completed run without finish time")
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := models.NewSyncRun("/photos", "filesystem", "all", "original")
		run.SetID("missing")
		if err := NewRunRepository(db).Update(run); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewSyncRun("/photos", "filesystem", "all", "original")
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		if err := repo.Delete(run.ID()); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		if _, err := repo.Get(run.ID()); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("deleted run should not be found, got %v", err)
		}
		if err := repo.Delete(run.ID()); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("second delete should report not found, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		for i, dest := range []string{"/a", "/b", "/a"} {
			run := models.NewSyncRun(dest, "filesystem", "all", "original")
			if err := repo.Create(run); err != nil {
				t.Fatalf("failed to create run %d: %v", i, err)
			}
			if i == 0 {
				run.Finish(models.RunCounts{}, false, nil)
				if err := repo.Update(run); err != nil {
					t.Fatalf("failed to finish run: %v", err)
				}
			}
		}

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i-1].Sequence() < all[i].Sequence() {
				t.Errorf("runs not newest first: %d before %d", all[i-1].Sequence(), all[i].Sequence())
			}
		}

		limited, _ := repo.List(map[string]any{"limit": 2})
		if len(limited) != 2 || limited[0].Sequence() != 3 {
			t.Errorf("limit returned %d runs", len(limited))
		}

		byDest, _ := repo.List(map[string]any{"destination": "/a"})
		if len(byDest) != 2 {
			t.Errorf("expected 2 runs for /a, got %d", len(byDest))
		}

		completed, _ := repo.List(map[string]any{"status": models.RunCompleted})
		if len(completed) != 1 || completed[0].Sequence() != 1 {
			t.Errorf("expected run #1 as the only completed run, got %d runs", len(completed))
		}
	})
}

func TestRunFailures(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)
	run := models.NewSyncRun("/photos", "filesystem", "all", "original")
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	rec := repo.ForRun(run.ID())
	ctx := context.Background()
	if err := rec.RecordFailure(ctx, "IMG_0001.JPG", "retries exhausted"); err != nil {
		t.Fatalf("failed to record failure: %v", err)
	}
	if err := rec.RecordFailure(ctx, "IMG_0002.MOV", "no download URL"); err != nil {
		t.Fatalf("failed to record failure: %v", err)
	}

	got, err := repo.Failures(run.ID())
	if err != nil {
		t.Fatalf("failed to list failures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(got))
	}
	if got[0].Filename != "IMG_0001.JPG" || got[1].Reason != "no download URL" {
		t.Errorf("unexpected failures: %+v", got)
	}

	if err := repo.RecordFailure(ctx, "no-such-run", "x.jpg", "r"); err == nil {
		t.Error("expected foreign key violation for unknown run")
	}

	none, err := repo.Failures("other")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no failures for other run, got %d (%v)", len(none), err)
	}
}
