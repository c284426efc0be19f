package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/db"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/util/timezone"
)

func TestRunCleanupCycle(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	restore := timezone.SetClock(func() time.Time { return now })
	defer restore()

	conn, err := db.Connect("file::memory:")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	repo := repository.NewSQLiteRepository(conn)
	ctx := context.Background()

	for i, age := range []time.Duration{40 * 24 * time.Hour, 10 * 24 * time.Hour} {
		rec := &models.Recognition{RequestID: []string{"old", "new"}[i], Source: "image"}
		if err := repo.SaveRecognition(ctx, rec); err != nil {
			t.Fatalf("SaveRecognition: %v", err)
		}
		if err := conn.Model(rec).Update("created_at", now.Add(-age)).Error; err != nil {
			t.Fatalf("backdate: %v", err)
		}
	}

	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.mp4")
	fresh := filepath.Join(dir, "fresh.mp4")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Chtimes(stale, now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(fresh, now, now); err != nil {
		t.Fatal(err)
	}

	svc := NewService(repo, 30, dir, time.Hour, time.Minute)
	report := svc.RunCleanupCycle(ctx)

	if report.Recognitions != 1 || report.Uploads != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	recs, err := repo.ListRecognitions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].RequestID != "new" {
		t.Errorf("remaining recognitions = %+v", recs)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale upload not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh upload removed")
	}
}

func TestNewServiceDisabled(t *testing.T) {
	if svc := NewService(nil, 0, "", 0, time.Minute); svc != nil {
		t.Error("expected nil service when everything is disabled")
	}
	var svc *Service
	svc.StartBackgroundCleanup()
	svc.StopBackgroundCleanup()
	if r := svc.RunCleanupCycle(context.Background()); r != (Report{}) {
		t.Errorf("nil service report = %+v", r)
	}
}

func TestStartStop(t *testing.T) {
	svc := NewService(nil, 0, t.TempDir(), time.Hour, time.Hour)
	svc.StartBackgroundCleanup()
	svc.StopBackgroundCleanup()
	svc.StopBackgroundCleanup()
}
