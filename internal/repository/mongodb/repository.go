package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
)

const (
	productsCollection = "products"
	recipesCollection  = "recipes"
	issuesCollection   = "issue_records"
	reportsCollection  = "usage_reports"

	writeConflictCode       = 112
	transientTransactionErr = "TransientTransactionError"
)

var _ repository.Store = (*MongoDBRepository)(nil)

// MongoDBRepository implements repository.Store on MongoDB. Goods issues use
// multi-document transactions, so the deployment must be a replica set.
type MongoDBRepository struct {
	client   *mongo.Client
	products *mongo.Collection
	recipes  *mongo.Collection
	issues   *mongo.Collection
	reports  *mongo.Collection
	logger   *zap.Logger
}

// NewMongoDBRepository connects, pings and prepares indexes.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return NewFromClient(ctx, client, dbName, logger)
}

// NewFromClient builds the repository on an already connected client.
func NewFromClient(ctx context.Context, client *mongo.Client, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := client.Database(dbName)
	r := &MongoDBRepository{
		client:   client,
		products: db.Collection(productsCollection),
		recipes:  db.Collection(recipesCollection),
		issues:   db.Collection(issuesCollection),
		reports:  db.Collection(reportsCollection),
		logger:   logger,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	if _, err := r.products.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}}); err != nil {
		return fmt.Errorf("create products index: %w", err)
	}
	if _, err := r.issues.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}}); err != nil {
		return fmt.Errorf("create issue records index: %w", err)
	}
	if _, err := r.reports.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "date", Value: -1}}}); err != nil {
		return fmt.Errorf("create usage reports index: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *MongoDBRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// GetProduct implements repository.ProductStore.
func (r *MongoDBRepository) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var doc productDoc
	err := r.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, fmt.Errorf("product %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("find product %s: %w", id, translate(err))
	}
	return doc.model()
}

// GetProducts implements repository.ProductStore.
func (r *MongoDBRepository) GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := r.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find products: %w", translate(err))
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", translate(err))
	}
	for _, doc := range docs {
		p, err := doc.model()
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, nil
}

// ListProducts implements repository.ProductStore.
func (r *MongoDBRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetCollation(&options.Collation{Locale: "en", Strength: 2})
	cursor, err := r.products.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", translate(err))
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", translate(err))
	}
	out := make([]models.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.model()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpsertProduct implements repository.ProductStore.
func (r *MongoDBRepository) UpsertProduct(ctx context.Context, product models.Product) error {
	product.UpdatedAt = time.Now().UTC()
	doc, err := newProductDoc(product)
	if err != nil {
		return err
	}
	_, err = r.products.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", product.ID, translate(err))
	}
	return nil
}

// GetRecipe implements repository.RecipeStore.
func (r *MongoDBRepository) GetRecipe(ctx context.Context, id string) (models.Recipe, error) {
	var doc recipeDoc
	err := r.recipes.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Recipe{}, fmt.Errorf("recipe %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return models.Recipe{}, fmt.Errorf("find recipe %s: %w", id, translate(err))
	}
	return doc.model()
}

// ListRecipes implements repository.RecipeStore.
func (r *MongoDBRepository) ListRecipes(ctx context.Context) ([]models.Recipe, error) {
	cursor, err := r.recipes.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", translate(err))
	}
	var docs []recipeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode recipes: %w", translate(err))
	}
	out := make([]models.Recipe, 0, len(docs))
	for _, doc := range docs {
		recipe, err := doc.model()
		if err != nil {
			return nil, err
		}
		out = append(out, recipe)
	}
	return out, nil
}

// UpsertRecipe implements repository.RecipeStore.
func (r *MongoDBRepository) UpsertRecipe(ctx context.Context, recipe models.Recipe) error {
	doc, err := newRecipeDoc(recipe)
	if err != nil {
		return err
	}
	_, err = r.recipes.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert recipe %s: %w", recipe.ID, translate(err))
	}
	return nil
}

// GetIssue implements repository.IssueStore.
func (r *MongoDBRepository) GetIssue(ctx context.Context, id string) (models.IssueRecord, error) {
	var doc issueDoc
	err := r.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.IssueRecord{}, fmt.Errorf("issue %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return models.IssueRecord{}, fmt.Errorf("find issue %s: %w", id, translate(err))
	}
	return doc.model()
}

// ListIssues implements repository.IssueStore.
func (r *MongoDBRepository) ListIssues(ctx context.Context, filter repository.IssueFilter) ([]models.IssueRecord, error) {
	query := bson.M{}
	createdAt := bson.M{}
	if !filter.Since.IsZero() {
		createdAt["$gte"] = filter.Since
	}
	if !filter.Until.IsZero() {
		createdAt["$lt"] = filter.Until
	}
	if len(createdAt) > 0 {
		query["createdAt"] = createdAt
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.issues.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", translate(err))
	}
	var docs []issueDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode issues: %w", translate(err))
	}
	out := make([]models.IssueRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := doc.model()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveUsageReport implements repository.ReportStore.
func (r *MongoDBRepository) SaveUsageReport(ctx context.Context, report models.UsageReport) error {
	doc, err := newUsageReportDoc(report)
	if err != nil {
		return err
	}
	if _, err := r.reports.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert usage report: %w", translate(err))
	}
	return nil
}

// RunInTx implements repository.Transactor with a snapshot-read, majority-write
// transaction. Transient errors are retried by the driver; a write conflict
// that outlives the retries surfaces as repository.ErrConflict.
func (r *MongoDBRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx, &mongoTx{repo: r, now: time.Now().UTC()})
	}, txOpts)
	if err != nil {
		err = translate(err)
		if errors.Is(err, repository.ErrConflict) {
			r.logger.Warn("transaction aborted by write conflict", zap.Error(err))
		}
		return err
	}
	return nil
}

type mongoTx struct {
	repo *MongoDBRepository
	now  time.Time
}

// DecrementIfSufficient guards the $inc with a $gte filter on the same
// document, so the balance is checked and changed in one server-side step.
func (t *mongoTx) DecrementIfSufficient(ctx context.Context, productID string, amount decimal.Decimal) (models.Product, error) {
	minimum, err := toDecimal128(amount)
	if err != nil {
		return models.Product{}, err
	}
	delta, err := toDecimal128(amount.Neg())
	if err != nil {
		return models.Product{}, err
	}

	filter := bson.M{"_id": productID, "quantity": bson.M{"$gte": minimum}}
	update := bson.M{
		"$inc": bson.M{"quantity": delta},
		"$set": bson.M{"updatedAt": t.now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before productDoc
	err = t.repo.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	if err == nil {
		return before.model()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, fmt.Errorf("decrement product %s: %w", productID, err)
	}

	var current productDoc
	err = t.repo.products.FindOne(ctx, bson.M{"_id": productID}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, fmt.Errorf("product %s: %w", productID, repository.ErrNotFound)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("find product %s: %w", productID, err)
	}
	product, err := current.model()
	if err != nil {
		return models.Product{}, err
	}
	return product, fmt.Errorf("product %s: %w", productID, repository.ErrInsufficientStock)
}

func (t *mongoTx) CreateIssueRecord(ctx context.Context, record models.IssueRecord) error {
	doc, err := newIssueDoc(record)
	if err != nil {
		return err
	}
	if _, err := t.repo.issues.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert issue record: %w", err)
	}
	return nil
}

// translate maps driver errors that mean "lost a race" onto
// repository.ErrConflict and leaves everything else untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) &&
		(serverErr.HasErrorLabel(transientTransactionErr) || serverErr.HasErrorCode(writeConflictCode)) {
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	}
	return err
}
