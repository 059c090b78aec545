package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
)

const dateLayout = "2006-01-02"

// Store is the read and report surface the reporting service needs.
type Store interface {
	repository.ProductStore
	repository.IssueStore
	repository.ReportStore
}

// Service builds stock summaries for chat replies and scheduled reports.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a new reporting service instance.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// LowStock returns the products whose balance is at or below threshold,
// ordered by name.
func (s *Service) LowStock(ctx context.Context, threshold decimal.Decimal) ([]models.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	low := make([]models.Product, 0)
	for _, p := range products {
		if p.Quantity.LessThanOrEqual(threshold) {
			low = append(low, p)
		}
	}
	return low, nil
}

// DailyUsage totals every issue record created during the calendar day that
// contains day, in day's location, and saves the resulting report.
func (s *Service) DailyUsage(ctx context.Context, day time.Time) (models.UsageReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	records, err := s.store.ListIssues(ctx, repository.IssueFilter{Since: start, Until: end})
	if err != nil {
		return models.UsageReport{}, fmt.Errorf("list issues for %s: %w", start.Format(dateLayout), err)
	}

	report := Aggregate(records)
	report.Date = start
	report.CreatedAt = s.now().UTC()

	if err := s.store.SaveUsageReport(ctx, report); err != nil {
		return models.UsageReport{}, fmt.Errorf("save usage report: %w", err)
	}

	s.logger.Info("usage report generated",
		zap.String("date", start.Format(dateLayout)),
		zap.Int("issues", report.IssueCount),
		zap.Int("products", len(report.Lines)))
	return report, nil
}

// Aggregate sums issued quantities per product across records. Lines are
// ordered by product name, then id.
func Aggregate(records []models.IssueRecord) models.UsageReport {
	var report models.UsageReport
	totals := make(map[string]*models.UsageLine)

	for _, rec := range records {
		report.IssueCount++
		if rec.Source.Kind == models.SourceRecipe {
			report.CookCount++
		}
		for _, line := range rec.Lines {
			agg, ok := totals[line.ProductID]
			if !ok {
				agg = &models.UsageLine{ProductID: line.ProductID, ProductName: line.ProductName, Unit: line.Unit}
				totals[line.ProductID] = agg
			}
			agg.Quantity = agg.Quantity.Add(line.Quantity)
		}
	}

	report.Lines = make([]models.UsageLine, 0, len(totals))
	for _, line := range totals {
		report.Lines = append(report.Lines, *line)
	}
	sort.Slice(report.Lines, func(i, j int) bool {
		a, b := report.Lines[i], report.Lines[j]
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		return a.ProductID < b.ProductID
	})
	return report
}

// FormatLowStock renders a low-stock list as a chat message.
func FormatLowStock(products []models.Product, threshold decimal.Decimal) string {
	if len(products) == 0 {
		return fmt.Sprintf("All products are above %s.", threshold)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Low stock (at or below %s):", threshold)
	for _, p := range products {
		fmt.Fprintf(&b, "\n- %s: %s %s", displayName(p.Name, p.ID), p.Quantity, p.Unit)
	}
	return b.String()
}

// FormatUsage renders a usage report as a chat message.
func FormatUsage(report models.UsageReport) string {
	date := report.Date.Format(dateLayout)
	if report.IssueCount == 0 {
		return fmt.Sprintf("Usage %s: no stock issued.", date)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Usage %s: %d issues (%d cooked).", date, report.IssueCount, report.CookCount)
	for _, line := range report.Lines {
		fmt.Fprintf(&b, "\n- %s: %s %s", displayName(line.ProductName, line.ProductID), line.Quantity, line.Unit)
	}
	return b.String()
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
