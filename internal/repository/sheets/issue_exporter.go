package sheets

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/domain/models"
)

// Header is written once when the target range is still empty.
var Header = []interface{}{"Issue", "Created at", "Source", "Recipe", "Product id", "Product", "Quantity", "Unit"}

// IssueExporter mirrors committed issue records into a spreadsheet, one row per line.
type IssueExporter struct {
	repo       Repository
	sheetRange string
	timeout    time.Duration
	logger     *zap.Logger

	wg sync.WaitGroup
	// mu serialises appends so that the header lands first and rows of one
	// record stay contiguous.
	mu        sync.Mutex
	hasHeader bool
}

// NewIssueExporter wires an exporter on top of a sheet repository.
func NewIssueExporter(repo Repository, sheetRange string, logger *zap.Logger) *IssueExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueExporter{
		repo:       repo,
		sheetRange: sheetRange,
		timeout:    15 * time.Second,
		logger:     logger,
	}
}

// IssueApplied implements ledger.Observer. The export runs in the background
// and outlives the request that committed the record; failures are only logged.
func (e *IssueExporter) IssueApplied(ctx context.Context, record models.IssueRecord) {
	rows := Rows(record)
	if len(rows) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.export(ctx, record.ID, rows)
	}()
}

// Wait blocks until in-flight exports have finished.
func (e *IssueExporter) Wait() {
	e.wg.Wait()
}

func (e *IssueExporter) export(ctx context.Context, issueID string, rows [][]interface{}) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasHeader {
		if err := e.ensureHeader(ctx); err != nil {
			// Rows still go out; the header is retried on the next record.
			e.logger.Warn("failed to prepare issue sheet header", zap.Error(err))
		}
	}

	if err := e.repo.AppendRows(ctx, e.sheetRange, rows); err != nil {
		e.logger.Error("failed to mirror issue record", zap.String("issue_id", issueID), zap.Error(err))
		return
	}
	e.logger.Debug("issue record mirrored", zap.String("issue_id", issueID), zap.Int("rows", len(rows)))
}

func (e *IssueExporter) ensureHeader(ctx context.Context) error {
	existing, err := e.repo.ReadRows(ctx, e.sheetRange)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if err := e.repo.AppendRows(ctx, e.sheetRange, [][]interface{}{Header}); err != nil {
			return err
		}
	}
	e.hasHeader = true
	return nil
}

// Rows flattens a record into spreadsheet rows.
func Rows(record models.IssueRecord) [][]interface{} {
	rows := make([][]interface{}, 0, len(record.Lines))
	for _, line := range record.Lines {
		rows = append(rows, []interface{}{
			record.ID,
			record.CreatedAt.UTC().Format(time.RFC3339),
			string(record.Source.Kind),
			record.Source.RecipeName,
			line.ProductID,
			line.ProductName,
			line.Quantity.String(),
			line.Unit,
		})
	}
	return rows
}
