package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/guidelink/marketplace-backend/internal/config"
	"github.com/guidelink/marketplace-backend/internal/database"
	"github.com/guidelink/marketplace-backend/internal/models"
)

// ReconciliationService runs the scheduled background jobs: expiring gateway
// payment events stuck in pending (checkout abandoned, callback lost) and
// pruning old audit rows.
type ReconciliationService struct {
	cron      *cron.Cron
	eventRepo *database.PaymentEventRepository
	auditRepo *database.PaymentAuditRepository
	config    config.ReconcileConfig
	logger    *logrus.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	eventRepo *database.PaymentEventRepository,
	auditRepo *database.PaymentAuditRepository,
	cfg config.ReconcileConfig,
	logger *logrus.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		cron:      cron.New(cron.WithSeconds()),
		eventRepo: eventRepo,
		auditRepo: auditRepo,
		config:    cfg,
		logger:    logger,
	}
}

// Start schedules and starts all background jobs
func (s *ReconciliationService) Start() error {
	// Cron format: second minute hour day month weekday
	if _, err := s.cron.AddFunc(s.config.SweepSchedule, s.expireStaleEventsJob); err != nil {
		return fmt.Errorf("failed to schedule stale event sweep: %w", err)
	}
	s.logger.WithField("schedule", s.config.SweepSchedule).Info("Scheduled: stale payment event sweep")

	// Audit cleanup daily at 4 AM
	if _, err := s.cron.AddFunc("0 0 4 * * *", s.cleanupAuditsJob); err != nil {
		return fmt.Errorf("failed to schedule audit cleanup: %w", err)
	}
	s.logger.Info("Scheduled: payment audit cleanup (daily at 4:00 AM)")

	s.cron.Start()
	s.logger.Info("Reconciliation service started")

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *ReconciliationService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Reconciliation service stopped")
}

// expireStaleEventsJob marks gateway payment events pending longer than the
// configured TTL as failed. Ledger totals are untouched; a pending event was
// never applied.
func (s *ReconciliationService) expireStaleEventsJob() {
	startTime := time.Now()

	expired, err := s.eventRepo.ExpireStalePending(s.config.PendingEventTTL)
	if err != nil {
		s.logger.WithError(err).Error("Stale payment event sweep failed")
		return
	}

	if expired > 0 {
		s.auditRepo.Log(models.NewPaymentAudit(models.AuditEventExpired, models.AuditSourceSystem).
			SetPayload(models.JSONB{
				"expired_count": expired,
				"ttl":           s.config.PendingEventTTL.String(),
			}))
	}

	s.logger.WithFields(logrus.Fields{
		"expired":  expired,
		"duration": time.Since(startTime),
	}).Info("Stale payment event sweep completed")
}

// cleanupAuditsJob prunes audit rows older than the retention window
func (s *ReconciliationService) cleanupAuditsJob() {
	deleted, err := s.auditRepo.CleanupOlderThan(s.config.AuditRetention)
	if err != nil {
		s.logger.WithError(err).Error("Payment audit cleanup failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"deleted":   deleted,
		"retention": s.config.AuditRetention,
	}).Info("Payment audit cleanup completed")
}
