package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/config"
	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/service/reporting"
)

const jobTimeout = 2 * time.Minute

// Reporter produces the scheduled stock reports.
type Reporter interface {
	LowStock(ctx context.Context, threshold decimal.Decimal) ([]models.Product, error)
	DailyUsage(ctx context.Context, day time.Time) (models.UsageReport, error)
}

// Notifier delivers a report to the kitchen manager.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	reporter Reporter
	notifier Notifier
	cfg      config.AlertsConfig
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. notifier may be nil, in
// which case reports are only logged.
func NewScheduler(cfg config.AlertsConfig, reporter Reporter, notifier Notifier, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		reporter: reporter,
		notifier: notifier,
		cfg:      cfg,
		location: loc,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.LowStockSchedule, s.runLowStock); err != nil {
		return fmt.Errorf("schedule low stock report %q: %w", s.cfg.LowStockSchedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.UsageReportSchedule, s.runDailyUsage); err != nil {
		return fmt.Errorf("schedule usage report %q: %w", s.cfg.UsageReportSchedule, err)
	}

	s.logger.Info("starting scheduler",
		zap.String("timezone", s.location.String()),
		zap.String("low_stock", s.cfg.LowStockSchedule),
		zap.String("usage_report", s.cfg.UsageReportSchedule))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.LowStockReport(ctx); err != nil {
		s.logger.Error("low stock report failed", zap.Error(err))
	}
}

func (s *Scheduler) runDailyUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.DailyUsageReport(ctx); err != nil {
		s.logger.Error("usage report failed", zap.Error(err))
	}
}

// LowStockReport sends the list of products at or below the threshold.
// Nothing is sent when every product is above it.
func (s *Scheduler) LowStockReport(ctx context.Context) error {
	products, err := s.reporter.LowStock(ctx, s.cfg.LowStockThreshold)
	if err != nil {
		return err
	}

	s.logger.Info("low stock report generated", zap.Int("products", len(products)))
	if len(products) == 0 {
		return nil
	}
	return s.notify(ctx, reporting.FormatLowStock(products, s.cfg.LowStockThreshold))
}

// DailyUsageReport generates, saves and sends today's usage report.
func (s *Scheduler) DailyUsageReport(ctx context.Context) error {
	report, err := s.reporter.DailyUsage(ctx, s.now().In(s.location))
	if err != nil {
		return err
	}
	return s.notify(ctx, reporting.FormatUsage(report))
}

func (s *Scheduler) notify(ctx context.Context, message string) error {
	if s.notifier == nil {
		s.logger.Debug("no notifier configured, report not sent")
		return nil
	}
	if err := s.notifier.Notify(ctx, message); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	s.logger.Info("report sent")
	return nil
}
