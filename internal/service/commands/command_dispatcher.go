package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
	"github.com/mamadbah2/pantry/internal/service/ledger"
	"github.com/mamadbah2/pantry/internal/service/reporting"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not yet support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

// HelpText lists the supported chat commands.
const HelpText = "Supported commands:\n" +
	"/issue <productId> <qty> <description> - take stock out\n" +
	"/cook <recipeId> <portions> - cook a recipe\n" +
	"/preview <recipeId> <portions> - check a recipe against stock\n" +
	"/stock [productId] - show balances\n" +
	"/low [threshold] - list products running low"

// Catalog is the product lookup used by /stock.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// LowStockReporter lists products at or below a threshold.
type LowStockReporter interface {
	LowStock(ctx context.Context, threshold decimal.Decimal) ([]models.Product, error)
}

// Dispatcher executes parsed commands and returns the reply for the sender.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	engine       ledger.Engine
	catalog      Catalog
	reporting    LowStockReporter
	lowThreshold decimal.Decimal
	logger       *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(engine ledger.Engine, catalog Catalog, reporting LowStockReporter, lowThreshold decimal.Decimal, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:       engine,
		catalog:      catalog,
		reporting:    reporting,
		lowThreshold: lowThreshold,
		logger:       logger,
	}
}

// HandleCommand runs cmd on behalf of sender. Ledger rejections are turned
// into a reply; only unparseable input and storage failures are errors.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandIssue:
		req, err := buildGoodsIssue(cmd, sender)
		if err != nil {
			return "", err
		}
		record, err := s.engine.SubmitGoodsIssue(ctx, req)
		if err != nil {
			return s.rejection(err)
		}
		return formatRecord(record), nil
	case models.CommandCook:
		req, err := buildCook(cmd, sender)
		if err != nil {
			return "", err
		}
		record, err := s.engine.SubmitCookRequest(ctx, req)
		if err != nil {
			return s.rejection(err)
		}
		return formatRecord(record), nil
	case models.CommandPreview:
		req, err := buildCook(cmd, sender)
		if err != nil {
			return "", err
		}
		preview, err := s.engine.PreviewCook(ctx, req.RecipeID, req.Portions)
		if err != nil {
			return s.rejection(err)
		}
		return formatPreview(preview), nil
	case models.CommandStock:
		return s.stock(ctx, cmd)
	case models.CommandLow:
		return s.low(ctx, cmd)
	default:
		return "", ErrUnsupportedCommand
	}
}

func (s *Service) stock(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) > 0 {
		product, err := s.catalog.GetProduct(ctx, cmd.Args[0])
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Sprintf("Unknown product %s.", cmd.Args[0]), nil
		}
		if err != nil {
			return "", fmt.Errorf("load product: %w", err)
		}
		return fmt.Sprintf("%s: %s %s", product.Name, product.Quantity, product.Unit), nil
	}

	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return "", fmt.Errorf("list products: %w", err)
	}
	if len(products) == 0 {
		return "No products in stock.", nil
	}
	var b strings.Builder
	b.WriteString("Stock:")
	for _, p := range products {
		fmt.Fprintf(&b, "\n- %s (%s): %s %s", p.Name, p.ID, p.Quantity, p.Unit)
	}
	return b.String(), nil
}

func (s *Service) low(ctx context.Context, cmd models.Command) (string, error) {
	threshold := s.lowThreshold
	if len(cmd.Args) > 0 {
		v, err := decimal.NewFromString(cmd.Args[0])
		if err != nil || v.IsNegative() {
			return "", ErrInvalidArguments
		}
		threshold = v
	}

	products, err := s.reporting.LowStock(ctx, threshold)
	if err != nil {
		return "", err
	}
	return reporting.FormatLowStock(products, threshold), nil
}

// rejection turns a ledger error into a reply. Storage and conflict errors
// are passed back to the caller.
func (s *Service) rejection(err error) (string, error) {
	if ledger.IsRetryable(err) {
		return "", err
	}
	return DescribeError(err), nil
}

// DescribeError renders a ledger rejection for a chat user.
func DescribeError(err error) string {
	var (
		validation   *ledger.ValidationError
		notFound     *ledger.NotFoundError
		insufficient *ledger.InsufficientStockError
	)
	switch {
	case errors.As(err, &insufficient):
		var b strings.Builder
		b.WriteString("Not enough stock:")
		for _, sf := range insufficient.Shortfalls {
			name := sf.ProductName
			if name == "" {
				name = sf.ProductID
			}
			fmt.Fprintf(&b, "\n- %s: need %s %s, have %s", name, sf.Requested, sf.Unit, sf.Available)
		}
		return b.String()
	case errors.As(err, &notFound):
		return fmt.Sprintf("Unknown %s: %s.", notFound.Kind, strings.Join(notFound.IDs, ", "))
	case errors.As(err, &validation):
		return fmt.Sprintf("Invalid request: %s.", validation.Error())
	case errors.Is(err, ledger.ErrConflict):
		return "Stock changed while processing, please try again."
	default:
		return "Something went wrong, please try again later."
	}
}

// buildGoodsIssue reads "/issue <productId> <qty> <description...>". The
// description is the reason recorded on the issue, so it is required here too.
func buildGoodsIssue(cmd models.Command, sender string) (models.GoodsIssueRequest, error) {
	if len(cmd.Args) < 3 {
		return models.GoodsIssueRequest{}, ErrInvalidArguments
	}

	qty, err := decimal.NewFromString(cmd.Args[1])
	if err != nil {
		return models.GoodsIssueRequest{}, ErrInvalidArguments
	}

	description := strings.Join(cmd.Args[2:], " ")

	return models.GoodsIssueRequest{
		Items:       []models.IssueItem{{ProductID: cmd.Args[0], Quantity: qty}},
		Description: description,
		Reference:   chatReference(sender),
	}, nil
}

func buildCook(cmd models.Command, sender string) (models.CookRequest, error) {
	if len(cmd.Args) < 1 {
		return models.CookRequest{}, ErrInvalidArguments
	}

	portions := decimal.NewFromInt(1)
	if len(cmd.Args) > 1 {
		v, err := decimal.NewFromString(cmd.Args[1])
		if err != nil {
			return models.CookRequest{}, ErrInvalidArguments
		}
		portions = v
	}

	return models.CookRequest{RecipeID: cmd.Args[0], Portions: portions, Reference: chatReference(sender)}, nil
}

func chatReference(sender string) string {
	if sender == "" {
		return ""
	}
	return "whatsapp:" + sender
}

func formatRecord(record models.IssueRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issued (%s): %s", shortID(record.ID), record.Description)
	for _, line := range record.Lines {
		name := line.ProductName
		if name == "" {
			name = line.ProductID
		}
		fmt.Fprintf(&b, "\n- %s: %s %s", name, line.Quantity, line.Unit)
	}
	return b.String()
}

func formatPreview(preview models.CookPreview) string {
	var b strings.Builder
	status := "can be cooked"
	if !preview.Sufficient {
		status = "cannot be cooked"
	}
	fmt.Fprintf(&b, "%s x%s %s:", preview.RecipeName, preview.Portions, status)
	for _, line := range preview.Lines {
		name := line.ProductName
		if name == "" {
			name = line.ProductID
		}
		mark := "ok"
		switch {
		case line.Missing:
			mark = "unknown product"
		case !line.Sufficient:
			mark = "short"
		}
		fmt.Fprintf(&b, "\n- %s: need %s %s, have %s (%s)", name, line.TotalRequired, line.Unit, line.Available, mark)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
