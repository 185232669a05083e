package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/udaykiran1867/tce-project1/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListProducts(ctx context.Context) ([]ProductStock, error)
	GetProductStock(ctx context.Context, id int64) (ProductStock, error)
	ListRecords(ctx context.Context) ([]Record, error)
	GetRecord(ctx context.Context, id int64) (Record, error)
}

// IdempotencyPort remembers client request keys.
type IdempotencyPort interface {
	Claim(ctx context.Context, key, module string) (int64, bool, error)
	Complete(ctx context.Context, key string, resultID int64) error
	Release(ctx context.Context, key string) error
}

// CacheInvalidator drops cached reports after ledger changes.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	RequireDefectRemark bool
	// Location decides the calendar day of records created without an
	// issue date. Defaults to UTC.
	Location *time.Location
}

// Service coordinates stock ledger, movement log and student records.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	cache       CacheInvalidator
	cfg         ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. idem and cache may be nil.
func NewService(repo RepositoryPort, idem IdempotencyPort, cache CacheInvalidator, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{repo: repo, idempotency: idem, cache: cache, cfg: cfg, logger: logger, now: time.Now}
}

// ListProducts returns the catalogue with ledger values.
func (s *Service) ListProducts(ctx context.Context) ([]ProductStock, error) {
	return s.repo.ListProducts(ctx)
}

// AddProduct creates a product and its ledger row. Availability defaults to
// the master count and is clamped into [0, master].
func (s *Service) AddProduct(ctx context.Context, input AddProductInput) (ProductStock, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ProductStock{}, shared.Invalid("name", "required")
	}
	if input.MasterCount < 0 {
		return ProductStock{}, shared.Invalid("masterCount", "must not be negative")
	}
	if input.Price != nil && *input.Price < 0 {
		return ProductStock{}, shared.Invalid("price", "must not be negative")
	}
	available := input.MasterCount
	if input.Availability != nil {
		available = clamp(*input.Availability, 0, input.MasterCount)
	}

	var out ProductStock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.InsertProduct(ctx, Product{
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			Price:       input.Price,
			ImageURL:    input.ImageURL,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertStock(ctx, Stock{ProductID: product.ID, MasterCount: input.MasterCount, AvailableCount: available}); err != nil {
			return err
		}
		if input.MasterCount > 0 {
			if _, err := s.appendMovement(ctx, tx, product.ID, ActionCompanyPurchase, input.MasterCount, nil, nil); err != nil {
				return err
			}
		}
		if delta := available - input.MasterCount; delta != 0 {
			if _, err := s.appendMovement(ctx, tx, product.ID, ActionManualAdjustment, delta, nil, nil); err != nil {
				return err
			}
		}
		out = ProductStock{Product: product, MasterCount: input.MasterCount, AvailableCount: available}
		return nil
	})
	if err != nil {
		return ProductStock{}, err
	}
	s.changed(ctx, "product added", slog.Int64("product_id", out.ID))
	return out, nil
}

// ReceivePurchase raises both master and available counts by qty.
func (s *Service) ReceivePurchase(ctx context.Context, productID int64, qty int) (LedgerResult, error) {
	if qty <= 0 {
		return LedgerResult{}, shared.Invalid("masterCount", "quantity must be a positive number")
	}
	var out LedgerResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		stock.MasterCount += qty
		stock.AvailableCount += qty
		if err := tx.UpdateStock(ctx, stock); err != nil {
			return err
		}
		if _, err := s.appendMovement(ctx, tx, productID, ActionCompanyPurchase, qty, nil, nil); err != nil {
			return err
		}
		out = LedgerResult{ProductID: productID, MasterCount: stock.MasterCount, AvailableCount: stock.AvailableCount, RemarksStored: true}
		return nil
	})
	if err != nil {
		return LedgerResult{}, err
	}
	s.changed(ctx, "purchase received", slog.Int64("product_id", productID), slog.Int("qty", qty))
	return out, nil
}

// MarkDefective removes qty units from availability. RemarksStored is false
// only when a remark was supplied and storage could not keep it.
func (s *Service) MarkDefective(ctx context.Context, productID int64, qty int, remark string) (LedgerResult, error) {
	if qty <= 0 {
		return LedgerResult{}, shared.Invalid("quantity", "must be a positive number")
	}
	remark = strings.TrimSpace(remark)
	if remark == "" && s.cfg.RequireDefectRemark {
		return LedgerResult{}, shared.Invalid("remark", "required when removing defective items")
	}
	var out LedgerResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if stock.AvailableCount < qty {
			return ErrInsufficientStock
		}
		stock.AvailableCount -= qty
		if err := tx.UpdateStock(ctx, stock); err != nil {
			return err
		}
		var note *string
		if remark != "" {
			note = &remark
		}
		stored, err := s.appendMovement(ctx, tx, productID, ActionDefectiveRemoved, -qty, nil, note)
		if err != nil {
			return err
		}
		out = LedgerResult{
			ProductID:      productID,
			MasterCount:    stock.MasterCount,
			AvailableCount: stock.AvailableCount,
			RemarksStored:  note == nil || stored,
		}
		return nil
	})
	if err != nil {
		return LedgerResult{}, err
	}
	if !out.RemarksStored {
		s.logger.Warn("defective remark dropped, remarks column unsupported", slog.Int64("product_id", productID))
	}
	s.changed(ctx, "defective removed", slog.Int64("product_id", productID), slog.Int("qty", qty))
	return out, nil
}

// UpdateDetails applies an admin correction. Availability changes are logged
// as manual adjustments so the movement log still replays to the ledger.
func (s *Service) UpdateDetails(ctx context.Context, productID int64, input DetailsInput) (ProductStock, error) {
	if input.Price != nil && *input.Price < 0 {
		return ProductStock{}, shared.Invalid("price", "must not be negative")
	}
	if input.MasterCount != nil && *input.MasterCount < 0 {
		return ProductStock{}, shared.Invalid("masterCount", "must not be negative")
	}
	if input.Availability != nil && *input.Availability < 0 {
		return ProductStock{}, shared.Invalid("availability", "must not be negative")
	}
	var out ProductStock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		stock, err := tx.GetStockForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		next := stock
		if input.MasterCount != nil {
			next.MasterCount = *input.MasterCount
		}
		if input.Availability != nil {
			next.AvailableCount = *input.Availability
		}
		if next.AvailableCount > next.MasterCount {
			return shared.Invalid("availability", "cannot exceed master count")
		}
		if input.Price != nil || input.ImageURL != nil {
			if input.Price != nil {
				product.Price = input.Price
			}
			if input.ImageURL != nil {
				product.ImageURL = input.ImageURL
			}
			if err := tx.UpdateProduct(ctx, product); err != nil {
				return err
			}
		}
		if next != stock {
			if err := tx.UpdateStock(ctx, next); err != nil {
				return err
			}
		}
		if delta := next.AvailableCount - stock.AvailableCount; delta != 0 {
			if _, err := s.appendMovement(ctx, tx, productID, ActionManualAdjustment, delta, nil, nil); err != nil {
				return err
			}
		}
		out = ProductStock{Product: product, MasterCount: next.MasterCount, AvailableCount: next.AvailableCount}
		return nil
	})
	if err != nil {
		return ProductStock{}, err
	}
	s.changed(ctx, "product details updated", slog.Int64("product_id", productID))
	return out, nil
}

// DeleteProduct removes the product together with its movements, ledger row
// and student records.
func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return err
		}
		if err := tx.DeleteMovements(ctx, productID); err != nil {
			return err
		}
		if err := tx.DeleteStock(ctx, productID); err != nil {
			return err
		}
		return tx.DeleteProduct(ctx, productID)
	})
	if err != nil {
		return err
	}
	s.changed(ctx, "product deleted", slog.Int64("product_id", productID))
	return nil
}

func (s *Service) appendMovement(ctx context.Context, tx TxRepository, productID int64, action ActionType, qty int, ref *int64, remark *string) (bool, error) {
	return tx.InsertMovement(ctx, Movement{
		ProductID:   productID,
		Action:      action,
		Quantity:    qty,
		ReferenceID: ref,
		Remarks:     remark,
		CreatedAt:   s.now().UTC(),
	})
}

// changed records the mutation and invalidates cached reports. Cache failures
// are logged; the ledger write has already committed.
func (s *Service) changed(ctx context.Context, msg string, attrs ...slog.Attr) {
	if actor := shared.ActorFromContext(ctx); actor != "" {
		attrs = append(attrs, slog.String("actor", actor))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache invalidation failed", slog.Any("error", err))
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
