package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// BookingReconciler repairs bookings and seats the request path left behind
type BookingReconciler interface {
	ExpireAbandonedBookings(ctx context.Context, now time.Time) (int, error)
	ReleaseSeatsOfCancelledBookings(ctx context.Context) (int, error)
}

// AuditPruner deletes audit rows past retention
type AuditPruner interface {
	CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CronSchedule holds the cron specs (with seconds field) of each job
type CronSchedule struct {
	Reconcile      string
	OrphanedSeats  string
	AuditCleanup   string
	AuditRetention time.Duration
	JobTimeout     time.Duration
}

// DefaultCronSchedule returns the production schedule
func DefaultCronSchedule() CronSchedule {
	return CronSchedule{
		Reconcile:      "0 */5 * * * *",
		OrphanedSeats:  "@hourly",
		AuditCleanup:   "0 30 3 * * *",
		AuditRetention: 365 * 24 * time.Hour,
		JobTimeout:     2 * time.Minute,
	}
}

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	reconciler BookingReconciler
	audit      AuditPruner
	schedule   CronSchedule
	logger     *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(reconciler BookingReconciler, audit AuditPruner, schedule CronSchedule, logger *logrus.Logger) *CronService {
	if schedule.JobTimeout <= 0 {
		schedule.JobTimeout = DefaultCronSchedule().JobTimeout
	}
	return &CronService{
		cron:       cron.New(cron.WithSeconds()),
		reconciler: reconciler,
		audit:      audit,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"expire abandoned bookings", s.schedule.Reconcile, s.reconcileJob},
		{"release orphaned seats", s.schedule.OrphanedSeats, s.orphanedSeatsJob},
		{"cleanup audit logs", s.schedule.AuditCleanup, s.auditCleanupJob},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		s.logger.WithFields(logrus.Fields{"job": job.name, "schedule": job.spec}).Info("Scheduled cron job")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) jobContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.schedule.JobTimeout)
}

// reconcileJob cancels pending bookings whose hold window passed
func (s *CronService) reconcileJob() {
	ctx, cancel := s.jobContext()
	defer cancel()

	start := time.Now()
	expired, err := s.reconciler.ExpireAbandonedBookings(ctx, start)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to expire abandoned bookings")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"expired":  expired,
		"duration": time.Since(start).String(),
	}).Debug("[CRON] Abandoned booking sweep finished")
}

// orphanedSeatsJob frees seats still held by cancelled bookings
func (s *CronService) orphanedSeatsJob() {
	ctx, cancel := s.jobContext()
	defer cancel()

	released, err := s.reconciler.ReleaseSeatsOfCancelledBookings(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to release orphaned seats")
		return
	}
	if released > 0 {
		s.logger.WithField("released", released).Info("[CRON] Released orphaned seats")
	}
}

func (s *CronService) auditCleanupJob() {
	if s.audit == nil || s.schedule.AuditRetention <= 0 {
		return
	}
	ctx, cancel := s.jobContext()
	defer cancel()

	deleted, err := s.audit.CleanupOldAuditLogs(ctx, s.schedule.AuditRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup audit logs")
		return
	}
	s.logger.WithField("deleted", deleted).Info("[CRON] Cleaned up old audit logs")
}

// RunReconcileNow runs the abandoned booking sweep immediately
func (s *CronService) RunReconcileNow() {
	s.reconcileJob()
}

// RunOrphanedSeatsNow runs the orphaned seat repair immediately
func (s *CronService) RunOrphanedSeatsNow() {
	s.orphanedSeatsJob()
}
