package ledger_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
	"github.com/mamadbah2/pantry/internal/repository/memory"
	"github.com/mamadbah2/pantry/internal/service/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// spyStore wraps the memory store, counting calls and letting tests inject
// failures or interleave writes before the atomic apply.
type spyStore struct {
	*memory.Store

	productReads atomic.Int32
	recipeReads  atomic.Int32
	txCalls      atomic.Int32

	getProductsErr error
	txErr          error
	beforeTx       func(ctx context.Context)
}

func newSpyStore() *spyStore {
	return &spyStore{Store: memory.NewStore()}
}

func (s *spyStore) GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error) {
	s.productReads.Add(1)
	if s.getProductsErr != nil {
		return nil, s.getProductsErr
	}
	return s.Store.GetProducts(ctx, ids)
}

func (s *spyStore) GetRecipe(ctx context.Context, id string) (models.Recipe, error) {
	s.recipeReads.Add(1)
	return s.Store.GetRecipe(ctx, id)
}

func (s *spyStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.txCalls.Add(1)
	if s.beforeTx != nil {
		s.beforeTx(ctx)
	}
	if s.txErr != nil {
		return s.txErr
	}
	return s.Store.RunInTx(ctx, fn)
}

func (s *spyStore) storeCalls() int32 {
	return s.productReads.Load() + s.recipeReads.Load() + s.txCalls.Load()
}

func seedProducts(t *testing.T, store interface {
	UpsertProduct(context.Context, models.Product) error
}, products ...models.Product) {
	t.Helper()
	for _, p := range products {
		require.NoError(t, store.UpsertProduct(context.Background(), p))
	}
}

func quantityOf(t *testing.T, store *spyStore, id string) decimal.Decimal {
	t.Helper()
	p, err := store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func issueCount(t *testing.T, store *spyStore) int {
	t.Helper()
	records, err := store.ListIssues(context.Background(), repository.IssueFilter{})
	require.NoError(t, err)
	return len(records)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC)

func newService(store ledger.Store, opts ...ledger.Option) *ledger.Service {
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return fixedNow })}, opts...)
	return ledger.NewService(store, nil, opts...)
}

func friedRice() models.Recipe {
	return models.Recipe{
		ID:   "fried-rice",
		Name: "Fried Rice",
		Ingredients: []models.IngredientLine{
			{ProductID: "rice", QuantityPerPortion: dec("0.2"), Unit: "kg"},
			{ProductID: "egg", QuantityPerPortion: dec("1"), Unit: "pcs"},
		},
	}
}

func TestSubmitGoodsIssue_DeductsStockAndRecordsIssue(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store, models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("10")})
	svc := newService(store)

	record, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items:       []models.IssueItem{{ProductID: "flour", Quantity: dec("2")}},
		Description: "Daily use",
	})
	require.NoError(t, err)

	assert.True(t, dec("8").Equal(quantityOf(t, store, "flour")))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "Daily use", record.Description)
	assert.Equal(t, models.SourceManual, record.Source.Kind)
	assert.Equal(t, fixedNow.Truncate(time.Millisecond), record.CreatedAt)
	require.Len(t, record.Lines, 1)
	assert.Equal(t, "flour", record.Lines[0].ProductID)
	assert.Equal(t, "Flour", record.Lines[0].ProductName)
	assert.Equal(t, "kg", record.Lines[0].Unit)
	assert.True(t, dec("2").Equal(record.Lines[0].Quantity))

	stored, err := svc.GetIssue(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, stored.ID)
	assert.Equal(t, 1, issueCount(t, store))
}

func TestSubmitGoodsIssue_SumsDuplicateProducts(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store, models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("10")})
	svc := newService(store)

	record, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items: []models.IssueItem{
			{ProductID: "flour", Quantity: dec("1.5")},
			{ProductID: " flour ", Quantity: dec("2")},
		},
		Description: "Bread",
	})
	require.NoError(t, err)

	require.Len(t, record.Lines, 1)
	assert.True(t, dec("3.5").Equal(record.Lines[0].Quantity))
	assert.True(t, dec("6.5").Equal(quantityOf(t, store, "flour")))
}

func TestSubmitGoodsIssue_EmptyItemsMakesNoStoreCalls(t *testing.T) {
	store := newSpyStore()
	svc := newService(store)

	_, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items: []models.IssueItem{
			{ProductID: "", Quantity: dec("1")},
			{ProductID: "flour", Quantity: dec("0")},
			{ProductID: "sugar", Quantity: dec("-3")},
		},
		Description: "Nothing",
	})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Zero(t, store.storeCalls())
}

func TestSubmitGoodsIssue_BlankDescription(t *testing.T) {
	store := newSpyStore()
	svc := newService(store)

	_, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items:       []models.IssueItem{{ProductID: "flour", Quantity: dec("1")}},
		Description: "   ",
	})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "description", verr.Field)
	assert.Zero(t, store.storeCalls())
}

func TestSubmitGoodsIssue_UnknownProduct(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store, models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("10")})
	svc := newService(store)

	_, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items: []models.IssueItem{
			{ProductID: "flour", Quantity: dec("1")},
			{ProductID: "saffron", Quantity: dec("1")},
		},
		Description: "Paella",
	})

	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Kind)
	assert.Equal(t, []string{"saffron"}, nf.IDs)
	assert.True(t, dec("10").Equal(quantityOf(t, store, "flour")))
	assert.Zero(t, issueCount(t, store))
	assert.Zero(t, store.txCalls.Load())
}

func TestSubmitGoodsIssue_AllOrNothing(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store,
		models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("10")},
		models.Product{ID: "sugar", Name: "Sugar", Unit: "kg", Quantity: dec("1")},
	)
	svc := newService(store)

	_, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items: []models.IssueItem{
			{ProductID: "flour", Quantity: dec("2")},
			{ProductID: "sugar", Quantity: dec("5")},
		},
		Description: "Cake",
	})

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 1)
	sf := insufficient.Shortfalls[0]
	assert.Equal(t, "sugar", sf.ProductID)
	assert.True(t, dec("5").Equal(sf.Requested))
	assert.True(t, dec("1").Equal(sf.Available))
	assert.True(t, dec("4").Equal(sf.Missing()))

	assert.True(t, dec("10").Equal(quantityOf(t, store, "flour")))
	assert.True(t, dec("1").Equal(quantityOf(t, store, "sugar")))
	assert.Zero(t, issueCount(t, store))
}

func TestSubmitGoodsIssue_ExactBalanceIsAllowed(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store, models.Product{ID: "milk", Name: "Milk", Unit: "l", Quantity: dec("0.3")})
	svc := newService(store)

	_, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items: []models.IssueItem{
			{ProductID: "milk", Quantity: dec("0.1")},
			{ProductID: "milk", Quantity: dec("0.2")},
		},
		Description: "Sauce",
	})
	require.NoError(t, err)
	assert.True(t, quantityOf(t, store, "milk").IsZero())
}

func TestSubmitCookRequest_FriedRiceShortOnEggs(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store,
		models.Product{ID: "rice", Name: "Rice", Unit: "kg", Quantity: dec("1")},
		models.Product{ID: "egg", Name: "Egg", Unit: "pcs", Quantity: dec("2")},
	)
	require.NoError(t, store.UpsertRecipe(context.Background(), friedRice()))
	svc := newService(store)

	_, err := svc.SubmitCookRequest(context.Background(), models.CookRequest{RecipeID: "fried-rice", Portions: dec("3")})

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 1)
	assert.Equal(t, "egg", insufficient.Shortfalls[0].ProductID)
	assert.True(t, dec("3").Equal(insufficient.Shortfalls[0].Requested))
	assert.True(t, dec("2").Equal(insufficient.Shortfalls[0].Available))

	assert.True(t, dec("1").Equal(quantityOf(t, store, "rice")))
	assert.True(t, dec("2").Equal(quantityOf(t, store, "egg")))
	assert.Zero(t, issueCount(t, store))
}

func TestSubmitCookRequest_DeductsScaledIngredients(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store,
		models.Product{ID: "rice", Name: "Rice", Unit: "kg", Quantity: dec("1")},
		models.Product{ID: "egg", Name: "Egg", Unit: "pcs", Quantity: dec("6")},
	)
	require.NoError(t, store.UpsertRecipe(context.Background(), friedRice()))
	svc := newService(store)

	record, err := svc.SubmitCookRequest(context.Background(), models.CookRequest{
		RecipeID:  "fried-rice",
		Portions:  dec("3"),
		Reference: "order-17",
	})
	require.NoError(t, err)

	assert.True(t, dec("0.4").Equal(quantityOf(t, store, "rice")))
	assert.True(t, dec("3").Equal(quantityOf(t, store, "egg")))

	assert.Equal(t, models.SourceRecipe, record.Source.Kind)
	assert.Equal(t, "fried-rice", record.Source.RecipeID)
	assert.Equal(t, "Fried Rice", record.Source.RecipeName)
	require.NotNil(t, record.Source.Portions)
	assert.True(t, dec("3").Equal(*record.Source.Portions))
	assert.Equal(t, "order-17", record.Reference)
	assert.Equal(t, "Cooked 3 portions of Fried Rice", record.Description)
	require.Len(t, record.Lines, 2)
	assert.Equal(t, "rice", record.Lines[0].ProductID)
	assert.True(t, dec("0.6").Equal(record.Lines[0].Quantity))
	assert.Equal(t, "egg", record.Lines[1].ProductID)
	assert.True(t, dec("3").Equal(record.Lines[1].Quantity))
	assert.True(t, dec("3").Equal(record.TotalFor("egg")))
}

func TestSubmitCookRequest_UnknownRecipeSkipsProductReads(t *testing.T) {
	store := newSpyStore()
	svc := newService(store)

	_, err := svc.SubmitCookRequest(context.Background(), models.CookRequest{RecipeID: "ghost", Portions: dec("1")})

	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "recipe", nf.Kind)
	assert.Zero(t, store.productReads.Load())
	assert.Zero(t, store.txCalls.Load())
}

func TestSubmitCookRequest_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		req   models.CookRequest
		field string
	}{
		{name: "blank recipe", req: models.CookRequest{RecipeID: " ", Portions: dec("1")}, field: "recipeId"},
		{name: "zero portions", req: models.CookRequest{RecipeID: "fried-rice", Portions: dec("0")}, field: "portions"},
		{name: "negative portions", req: models.CookRequest{RecipeID: "fried-rice", Portions: dec("-2")}, field: "portions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newSpyStore()
			svc := newService(store)

			_, err := svc.SubmitCookRequest(context.Background(), tt.req)

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, store.storeCalls())
		})
	}
}

func TestSubmitCookRequest_EmptyRecipeIsRejected(t *testing.T) {
	store := newSpyStore()
	require.NoError(t, store.UpsertRecipe(context.Background(), models.Recipe{ID: "water", Name: "Glass of water"}))
	svc := newService(store)

	_, err := svc.SubmitCookRequest(context.Background(), models.CookRequest{RecipeID: "water", Portions: dec("2")})

	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Zero(t, store.txCalls.Load())
	assert.Zero(t, issueCount(t, store))
}

func TestSubmitCookRequest_FractionalPortions(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store,
		models.Product{ID: "rice", Name: "Rice", Unit: "kg", Quantity: dec("1")},
		models.Product{ID: "egg", Name: "Egg", Unit: "pcs", Quantity: dec("1")},
	)
	require.NoError(t, store.UpsertRecipe(context.Background(), friedRice()))
	svc := newService(store)

	record, err := svc.SubmitCookRequest(context.Background(), models.CookRequest{RecipeID: "fried-rice", Portions: dec("0.5")})
	require.NoError(t, err)

	assert.Equal(t, "Cooked 0.5 portions of Fried Rice", record.Description)
	assert.True(t, dec("0.9").Equal(quantityOf(t, store, "rice")))
	assert.True(t, dec("0.5").Equal(quantityOf(t, store, "egg")))
}

func TestSubmit_RaceAfterPreCheckIsRejectedInFull(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store,
		models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("10")},
		models.Product{ID: "butter", Name: "Butter", Unit: "kg", Quantity: dec("2")},
	)
	svc := newService(store)

	// Another writer drains butter between the advisory check and the apply.
	store.beforeTx = func(ctx context.Context) {
		store.beforeTx = nil
		require.NoError(t, store.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.DecrementIfSufficient(ctx, "butter", dec("1.5"))
			return err
		}))
	}

	_, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items: []models.IssueItem{
			{ProductID: "flour", Quantity: dec("4")},
			{ProductID: "butter", Quantity: dec("1")},
		},
		Description: "Pastry",
	})

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 1)
	assert.Equal(t, "butter", insufficient.Shortfalls[0].ProductID)
	assert.True(t, dec("0.5").Equal(insufficient.Shortfalls[0].Available))

	assert.True(t, dec("10").Equal(quantityOf(t, store, "flour")))
	assert.True(t, dec("0.5").Equal(quantityOf(t, store, "butter")))
	assert.Zero(t, issueCount(t, store))
}

func TestSubmit_StoreFailuresAreTyped(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(s *spyStore)
		target    error
		retryable bool
	}{
		{
			name:      "read failure",
			setup:     func(s *spyStore) { s.getProductsErr = errors.New("connection reset") },
			target:    ledger.ErrStorage,
			retryable: true,
		},
		{
			name:      "write conflict",
			setup:     func(s *spyStore) { s.txErr = errors.Join(errors.New("aborted"), repository.ErrConflict) },
			target:    ledger.ErrConflict,
			retryable: true,
		},
		{
			name:      "transaction failure",
			setup:     func(s *spyStore) { s.txErr = errors.New("no primary") },
			target:    ledger.ErrStorage,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newSpyStore()
			seedProducts(t, store, models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("10")})
			tt.setup(store)
			svc := newService(store)

			_, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
				Items:       []models.IssueItem{{ProductID: "flour", Quantity: dec("1")}},
				Description: "Daily use",
			})

			require.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.retryable, ledger.IsRetryable(err))
			assert.True(t, dec("10").Equal(quantityOf(t, store, "flour")))
			assert.Zero(t, issueCount(t, store))
		})
	}
}

func TestSubmit_CancelledContextIsStorageError(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store, models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("10")})
	svc := newService(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.SubmitGoodsIssue(ctx, models.GoodsIssueRequest{
		Items:       []models.IssueItem{{ProductID: "flour", Quantity: dec("1")}},
		Description: "Daily use",
	})

	var serr *ledger.StorageError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, dec("10").Equal(quantityOf(t, store, "flour")))
}

type recordingObserver struct {
	records []models.IssueRecord
}

func (o *recordingObserver) IssueApplied(_ context.Context, record models.IssueRecord) {
	o.records = append(o.records, record)
}

type recordingRecorder struct {
	outcomes []string
}

func (r *recordingRecorder) ObserveIssue(source models.IssueSourceKind, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, string(source)+":"+outcome)
}

func TestSubmit_NotifiesObserversAndRecorder(t *testing.T) {
	store := newSpyStore()
	seedProducts(t, store, models.Product{ID: "flour", Name: "Flour", Unit: "kg", Quantity: dec("3")})
	observer := &recordingObserver{}
	recorder := &recordingRecorder{}
	svc := newService(store, ledger.WithObserver(observer), ledger.WithRecorder(recorder))

	record, err := svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items:       []models.IssueItem{{ProductID: "flour", Quantity: dec("2")}},
		Description: "Daily use",
	})
	require.NoError(t, err)

	_, err = svc.SubmitGoodsIssue(context.Background(), models.GoodsIssueRequest{
		Items:       []models.IssueItem{{ProductID: "flour", Quantity: dec("2")}},
		Description: "Daily use",
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	_, err = svc.SubmitCookRequest(context.Background(), models.CookRequest{RecipeID: "ghost", Portions: dec("1")})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.Len(t, observer.records, 1)
	assert.Equal(t, record.ID, observer.records[0].ID)
	assert.Equal(t, []string{"manual:applied", "manual:insufficient", "recipe:not_found"}, recorder.outcomes)
}

func TestGetIssue_NotFound(t *testing.T) {
	svc := newService(newSpyStore())

	_, err := svc.GetIssue(context.Background(), "missing")

	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "issue", nf.Kind)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "applied", ledger.Outcome(nil))
	assert.Equal(t, "validation", ledger.Outcome(&ledger.ValidationError{Reason: "x"}))
	assert.Equal(t, "not_found", ledger.Outcome(&ledger.NotFoundError{Kind: "recipe", IDs: []string{"a"}}))
	assert.Equal(t, "insufficient", ledger.Outcome(&ledger.InsufficientStockError{}))
	assert.Equal(t, "conflict", ledger.Outcome(&ledger.ConcurrencyConflictError{Err: repository.ErrConflict}))
	assert.Equal(t, "storage", ledger.Outcome(&ledger.StorageError{Op: "x", Err: errors.New("boom")}))
}
