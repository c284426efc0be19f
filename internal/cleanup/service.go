package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"face-attendance-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Store deletes recognition log rows.
type Store interface {
	DeleteRecognitionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Report summarizes one cleanup cycle.
type Report struct {
	Recognitions int64
	Uploads      int
	Failed       int
}

// Service periodically purges old recognition log rows and stale upload files.
type Service struct {
	store         Store
	retention     time.Duration
	uploadDir     string
	uploadMaxAge  time.Duration
	checkInterval time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService creates a cleanup service. It returns nil when both the log
// retention and the upload sweep are disabled.
func NewService(store Store, retentionDays int, uploadDir string, uploadMaxAge, checkInterval time.Duration) *Service {
	if retentionDays <= 0 && (uploadDir == "" || uploadMaxAge <= 0) {
		log.Info("Automatic cleanup disabled")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, UploadDir='%s', CheckInterval=%s", retentionDays, uploadDir, checkInterval)
	return &Service{
		store:         store,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		uploadDir:     uploadDir,
		uploadMaxAge:  uploadMaxAge,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup runs a cycle immediately and then on every tick.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunCleanupCycle(context.Background())

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle(context.Background())
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup stops the routine and waits for a running cycle.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// RunCleanupCycle performs one cleanup pass.
func (s *Service) RunCleanupCycle(ctx context.Context) Report {
	var report Report
	if s == nil {
		return report
	}
	now := timezone.Now()

	if s.retention > 0 && s.store != nil {
		cutoff := now.Add(-s.retention)
		n, err := s.store.DeleteRecognitionsBefore(ctx, cutoff)
		if err != nil {
			log.Errorf("Cleanup: failed to delete recognitions before %s: %v", cutoff.Format(time.RFC3339), err)
			report.Failed++
		} else {
			report.Recognitions = n
		}
	}

	if s.uploadDir != "" && s.uploadMaxAge > 0 {
		removed, failed := s.sweepUploads(now.Add(-s.uploadMaxAge))
		report.Uploads = removed
		report.Failed += failed
	}

	log.Infof("Cleanup cycle finished. Recognitions: %d, Uploads: %d, Failed: %d", report.Recognitions, report.Uploads, report.Failed)
	return report
}

// sweepUploads removes regular files in the upload directory last modified
// before cutoff. Requests delete their own temp files, so anything left here
// was orphaned by a crash.
func (s *Service) sweepUploads(cutoff time.Time) (removed, failed int) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Cleanup: cannot read upload dir '%s': %v", s.uploadDir, err)
			failed++
		}
		return 0, failed
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.uploadDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Cleanup: failed to delete upload '%s': %v", path, err)
			failed++
			continue
		}
		removed++
	}
	return removed, failed
}
