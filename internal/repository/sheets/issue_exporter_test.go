package sheets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/pantry/internal/domain/models"
)

type fakeRepo struct {
	mu      sync.Mutex
	ranges  []string
	rows    [][]interface{}
	err     error
	readErr error
	reads   int
}

func (f *fakeRepo) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, sheetRange)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeRepo) ReadRows(context.Context, string) ([][]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.rows, nil
}

func record() models.IssueRecord {
	portions := decimal.NewFromInt(2)
	return models.IssueRecord{
		ID:        "issue-1",
		CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		Source:    models.IssueSource{Kind: models.SourceRecipe, RecipeID: "bread", RecipeName: "Bread", Portions: &portions},
		Lines: []models.IssueLine{
			{ProductID: "flour", ProductName: "Flour", Unit: "kg", Quantity: decimal.RequireFromString("1.2")},
			{ProductID: "yeast", ProductName: "Yeast", Unit: "g", Quantity: decimal.RequireFromString("14")},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(record())

	require.Len(t, rows, 2)
	assert.Equal(t, []interface{}{"issue-1", "2026-02-03T04:05:06Z", "recipe", "Bread", "flour", "Flour", "1.2", "kg"}, rows[0])
	assert.Equal(t, "yeast", rows[1][4])
}

func TestIssueExporter_WritesHeaderOnceThenLines(t *testing.T) {
	repo := &fakeRepo{}
	exporter := NewIssueExporter(repo, "Issues!A:H", nil)

	exporter.IssueApplied(context.Background(), record())
	exporter.Wait()
	exporter.IssueApplied(context.Background(), record())
	exporter.Wait()

	assert.Equal(t, []string{"Issues!A:H", "Issues!A:H", "Issues!A:H"}, repo.ranges)
	require.Len(t, repo.rows, 5)
	assert.Equal(t, Header, repo.rows[0])
	assert.Equal(t, "issue-1", repo.rows[1][0])
	assert.Equal(t, 1, repo.reads)
}

func TestIssueExporter_KeepsExistingHeader(t *testing.T) {
	repo := &fakeRepo{rows: [][]interface{}{Header}}
	exporter := NewIssueExporter(repo, "Issues!A:H", nil)

	exporter.IssueApplied(context.Background(), record())
	exporter.Wait()

	assert.Len(t, repo.rows, 3)
	assert.Len(t, repo.ranges, 1)
}

func TestIssueExporter_SurvivesCancelledRequest(t *testing.T) {
	repo := &fakeRepo{readErr: errors.New("sheet unavailable")}
	exporter := NewIssueExporter(repo, "Issues!A:H", nil)

	ctx, cancel := context.WithCancel(context.Background())
	exporter.IssueApplied(ctx, record())
	cancel()
	exporter.Wait()

	require.Len(t, repo.rows, 2, "lines are appended even when the header check fails")
	assert.Equal(t, "issue-1", repo.rows[0][0])
}

func TestIssueExporter_SwallowsFailures(t *testing.T) {
	repo := &fakeRepo{err: errors.New("quota exceeded")}
	exporter := NewIssueExporter(repo, "Issues!A:H", nil)

	assert.NotPanics(t, func() {
		exporter.IssueApplied(context.Background(), record())
		exporter.Wait()
	})
	assert.Len(t, repo.ranges, 2)
	assert.Empty(t, repo.rows)
}

func TestIssueExporter_SkipsEmptyRecords(t *testing.T) {
	repo := &fakeRepo{}
	exporter := NewIssueExporter(repo, "Issues!A:H", nil)

	exporter.IssueApplied(context.Background(), models.IssueRecord{ID: "empty"})
	exporter.Wait()
	assert.Empty(t, repo.ranges)
}
