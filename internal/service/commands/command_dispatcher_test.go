package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
	"github.com/mamadbah2/pantry/internal/repository/memory"
	"github.com/mamadbah2/pantry/internal/service/ledger"
	"github.com/mamadbah2/pantry/internal/service/reporting"
)

func q(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newDispatcher(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertProduct(ctx, models.Product{ID: "rice", Name: "Rice", Unit: "kg", Quantity: q("1")}))
	require.NoError(t, store.UpsertProduct(ctx, models.Product{ID: "egg", Name: "Egg", Unit: "pcs", Quantity: q("2")}))
	require.NoError(t, store.UpsertRecipe(ctx, models.Recipe{
		ID:   "fried-rice",
		Name: "Fried Rice",
		Ingredients: []models.IngredientLine{
			{ProductID: "rice", QuantityPerPortion: q("0.2"), Unit: "kg"},
			{ProductID: "egg", QuantityPerPortion: q("1"), Unit: "pcs"},
		},
	}))

	engine := ledger.NewService(store, nil)
	return NewService(engine, store, reporting.NewService(store, nil), q("1"), nil), store
}

func TestHandleCommand_Issue(t *testing.T) {
	svc, store := newDispatcher(t)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/issue rice 0.25 Staff Lunch"), "224600000000")
	require.NoError(t, err)
	assert.Contains(t, reply, "Staff Lunch")
	assert.Contains(t, reply, "Rice: 0.25 kg")

	rice, err := store.GetProduct(context.Background(), "rice")
	require.NoError(t, err)
	assert.True(t, q("0.75").Equal(rice.Quantity))

	records, err := store.ListIssues(context.Background(), repository.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "whatsapp:224600000000", records[0].Reference)
}

func TestHandleCommand_IssueWithoutReasonIsRejected(t *testing.T) {
	svc, store := newDispatcher(t)

	_, err := svc.HandleCommand(context.Background(), models.ParseCommand("/issue rice 0.25"), "224")
	assert.ErrorIs(t, err, ErrInvalidArguments)

	rice, err := store.GetProduct(context.Background(), "rice")
	require.NoError(t, err)
	assert.True(t, q("1").Equal(rice.Quantity))
	records, err := store.ListIssues(context.Background(), repository.IssueFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHandleCommand_CookShortfallIsAReply(t *testing.T) {
	svc, store := newDispatcher(t)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/cook fried-rice 3"), "224")
	require.NoError(t, err)
	assert.Contains(t, reply, "Not enough stock")
	assert.Contains(t, reply, "Egg: need 3 pcs, have 2")
	assert.NotContains(t, reply, "Rice")

	egg, err := store.GetProduct(context.Background(), "egg")
	require.NoError(t, err)
	assert.True(t, q("2").Equal(egg.Quantity))
}

func TestHandleCommand_Preview(t *testing.T) {
	svc, _ := newDispatcher(t)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/preview fried-rice 2"), "224")
	require.NoError(t, err)
	assert.Contains(t, reply, "Fried Rice x2 can be cooked")
	assert.Contains(t, reply, "Rice: need 0.4 kg, have 1 (ok)")
}

func TestHandleCommand_StockAndLow(t *testing.T) {
	svc, _ := newDispatcher(t)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/stock egg"), "224")
	require.NoError(t, err)
	assert.Equal(t, "Egg: 2 pcs", reply)

	reply, err = svc.HandleCommand(context.Background(), models.ParseCommand("/stock"), "224")
	require.NoError(t, err)
	assert.Contains(t, reply, "Egg (egg): 2 pcs")
	assert.Contains(t, reply, "Rice (rice): 1 kg")

	reply, err = svc.HandleCommand(context.Background(), models.ParseCommand("/stock saffron"), "224")
	require.NoError(t, err)
	assert.Equal(t, "Unknown product saffron.", reply)

	reply, err = svc.HandleCommand(context.Background(), models.ParseCommand("/low"), "224")
	require.NoError(t, err)
	assert.Contains(t, reply, "Rice: 1 kg")
	assert.NotContains(t, reply, "Egg")

	reply, err = svc.HandleCommand(context.Background(), models.ParseCommand("/low 5"), "224")
	require.NoError(t, err)
	assert.Contains(t, reply, "Egg: 2 pcs")
}

func TestHandleCommand_BadInput(t *testing.T) {
	svc, _ := newDispatcher(t)

	for _, text := range []string{"/issue rice", "/issue rice 1", "/issue rice lots lunch", "/cook", "/cook fried-rice many", "/low -1"} {
		_, err := svc.HandleCommand(context.Background(), models.ParseCommand(text), "224")
		assert.ErrorIs(t, err, ErrInvalidArguments, text)
	}

	_, err := svc.HandleCommand(context.Background(), models.ParseCommand("hello"), "224")
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
}

func TestHandleCommand_ValidationAndNotFoundAreReplies(t *testing.T) {
	svc, _ := newDispatcher(t)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/issue rice 0 oops"), "224")
	require.NoError(t, err)
	assert.Contains(t, reply, "Invalid request")

	reply, err = svc.HandleCommand(context.Background(), models.ParseCommand("/cook pizza 1"), "224")
	require.NoError(t, err)
	assert.Equal(t, "Unknown recipe: pizza.", reply)
}

type failingEngine struct {
	ledger.Engine
	err error
}

func (f failingEngine) SubmitGoodsIssue(context.Context, models.GoodsIssueRequest) (models.IssueRecord, error) {
	return models.IssueRecord{}, f.err
}

func TestHandleCommand_StorageErrorsPropagate(t *testing.T) {
	storageErr := &ledger.StorageError{Op: "apply", Err: errors.New("no primary")}
	svc := NewService(failingEngine{err: storageErr}, memory.NewStore(), nil, q("1"), nil)

	_, err := svc.HandleCommand(context.Background(), models.ParseCommand("/issue rice 1 lunch"), "224")
	assert.ErrorIs(t, err, ledger.ErrStorage)
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "Stock changed while processing, please try again.", DescribeError(&ledger.ConcurrencyConflictError{Err: repository.ErrConflict}))
	assert.Equal(t, "Something went wrong, please try again later.", DescribeError(context.DeadlineExceeded))
}
