package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
	"github.com/mamadbah2/pantry/internal/service/ledger"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

const maxIssueListLimit = 500

// Catalog is the read surface for products and recipes.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetRecipe(ctx context.Context, id string) (models.Recipe, error)
	ListRecipes(ctx context.Context) ([]models.Recipe, error)
}

// APIHandler exposes the goods-issue engine and catalog reads over HTTP.
type APIHandler struct {
	engine  ledger.Engine
	catalog Catalog
	logger  *zap.Logger
}

// NewAPIHandler constructs the HTTP handler adapter.
func NewAPIHandler(engine ledger.Engine, catalog Catalog, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{engine: engine, catalog: catalog, logger: logger}
}

// SubmitGoodsIssue handles POST /api/v1/goods-issues.
func (h *APIHandler) SubmitGoodsIssue(c *gin.Context) {
	var req models.GoodsIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("invalid goods issue payload", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: "invalid request body"})
		return
	}

	record, err := h.engine.SubmitGoodsIssue(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// SubmitCook handles POST /api/v1/cook.
func (h *APIHandler) SubmitCook(c *gin.Context) {
	var req models.CookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("invalid cook payload", zap.Error(err))
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: "invalid request body"})
		return
	}

	record, err := h.engine.SubmitCookRequest(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// PreviewCook handles GET /api/v1/recipes/:id/preview?portions=N.
func (h *APIHandler) PreviewCook(c *gin.Context) {
	portions, err := decimal.NewFromString(c.DefaultQuery("portions", "1"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeValidationError, Message: "portions must be a number", Field: "portions"})
		return
	}

	preview, err := h.engine.PreviewCook(c.Request.Context(), c.Param("id"), portions)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// GetIssue handles GET /api/v1/issues/:id.
func (h *APIHandler) GetIssue(c *gin.Context) {
	record, err := h.engine.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListIssues handles GET /api/v1/issues?since=&until=&limit=.
func (h *APIHandler) ListIssues(c *gin.Context) {
	var filter repository.IssueFilter
	var err error

	if filter.Since, err = parseTimeQuery(c, "since"); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeValidationError, Message: "since must be RFC3339", Field: "since"})
		return
	}
	if filter.Until, err = parseTimeQuery(c, "until"); err != nil {
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeValidationError, Message: "until must be RFC3339", Field: "until"})
		return
	}
	filter.Limit = 100
	if raw := c.Query("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit <= 0 || limit > maxIssueListLimit {
			abortWithError(c, http.StatusBadRequest, ErrorResponse{Code: CodeValidationError, Message: "limit must be between 1 and 500", Field: "limit"})
			return
		}
		filter.Limit = limit
	}

	records, err := h.engine.ListIssues(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": records})
}

// ListProducts handles GET /api/v1/products.
func (h *APIHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.failCatalog(c, "product", "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// GetProduct handles GET /api/v1/products/:id.
func (h *APIHandler) GetProduct(c *gin.Context) {
	id := c.Param("id")
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.failCatalog(c, "product", id, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// ListRecipes handles GET /api/v1/recipes.
func (h *APIHandler) ListRecipes(c *gin.Context) {
	recipes, err := h.catalog.ListRecipes(c.Request.Context())
	if err != nil {
		h.failCatalog(c, "recipe", "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipes": recipes})
}

// GetRecipe handles GET /api/v1/recipes/:id.
func (h *APIHandler) GetRecipe(c *gin.Context) {
	id := c.Param("id")
	recipe, err := h.catalog.GetRecipe(c.Request.Context(), id)
	if err != nil {
		h.failCatalog(c, "recipe", id, err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	status, body := mapLedgerError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	abortWithError(c, status, body)
}

func (h *APIHandler) failCatalog(c *gin.Context, kind, id string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		h.fail(c, &ledger.NotFoundError{Kind: kind, IDs: []string{id}})
		return
	}
	h.fail(c, &ledger.StorageError{Op: "load " + kind, Err: err})
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
