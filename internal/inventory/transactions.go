package inventory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/udaykiran1867/tce-project1/internal/shared"
)

const idempotencyModule = "transactions"

// ListTransactions returns all student records newest first.
func (s *Service) ListTransactions(ctx context.Context) ([]Record, error) {
	return s.repo.ListRecords(ctx)
}

// CreateTransaction inserts a borrow or purchase record and removes its
// quantity from availability. A borrow created with a return date is logged
// as borrowed and returned in the same step.
func (s *Service) CreateTransaction(ctx context.Context, input CreateRecordInput) (Record, error) {
	if input.ProductID <= 0 {
		return Record{}, shared.Invalid("productId", "required")
	}
	name := strings.TrimSpace(input.StudentName)
	if name == "" {
		return Record{}, shared.Invalid("student_name", "required")
	}
	if input.Type != TransactionBorrowed && input.Type != TransactionPurchased {
		return Record{}, shared.Invalid("transaction_type", "must be borrowed or purchased")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return Record{}, shared.Invalid("quantity", "must be a positive number")
	}
	issue := input.IssueDate
	if issue == nil {
		today := s.today()
		issue = &today
	}

	if input.IdempotencyKey != "" {
		if _, err := uuid.Parse(input.IdempotencyKey); err != nil {
			return Record{}, shared.Invalid("Idempotency-Key", "must be a UUID")
		}
		if s.idempotency != nil {
			resultID, replay, err := s.idempotency.Claim(ctx, input.IdempotencyKey, idempotencyModule)
			if errors.Is(err, shared.ErrIdempotencyInFlight) {
				return Record{}, ErrDuplicateRequest
			}
			if err != nil {
				return Record{}, err
			}
			if replay {
				s.logger.Info("idempotent replay", slog.String("key", input.IdempotencyKey), slog.Int64("transaction_id", resultID))
				return s.repo.GetRecord(ctx, resultID)
			}
		}
	}

	var out Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, input.ProductID)
		if errors.Is(err, ErrStockMissing) {
			return shared.Invalid("productId", "unknown product")
		}
		if err != nil {
			return err
		}
		if qty > stock.AvailableCount {
			if input.Type == TransactionBorrowed {
				return ErrNotEnoughForBorrow
			}
			return ErrInsufficientStock
		}
		rec, err := tx.InsertRecord(ctx, Record{
			ProductID:   input.ProductID,
			StudentName: name,
			USN:         strings.TrimSpace(input.USN),
			PhoneNumber: strings.TrimSpace(input.PhoneNumber),
			Section:     strings.TrimSpace(input.Section),
			Type:        input.Type,
			Quantity:    qty,
			IssueDate:   issue,
			ReturnDate:  input.ReturnDate,
		})
		if err != nil {
			return err
		}
		ref := rec.ID
		action := ActionStudentBorrow
		if rec.Type == TransactionPurchased {
			action = ActionStudentPurchase
		}
		if _, err := s.appendMovement(ctx, tx, rec.ProductID, action, -qty, &ref, nil); err != nil {
			return err
		}
		stock.AvailableCount -= rec.holding()
		if rec.Type == TransactionBorrowed && rec.Returned() {
			if _, err := s.appendMovement(ctx, tx, rec.ProductID, ActionStudentReturn, qty, &ref, nil); err != nil {
				return err
			}
		}
		if err := tx.UpdateStock(ctx, stock); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if relErr := s.idempotency.Release(ctx, input.IdempotencyKey); relErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		return Record{}, err
	}
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Complete(ctx, input.IdempotencyKey, out.ID); err != nil {
			s.logger.Warn("complete idempotency key", slog.Any("error", err), slog.Int64("transaction_id", out.ID))
		}
	}
	s.changed(ctx, "transaction created", slog.Int64("transaction_id", out.ID), slog.Int64("product_id", out.ProductID))
	return out, nil
}

// UpdateTransaction reverses the stock effect of the stored record, applies
// the effect of the edited one, clamps availability to the master count and
// rejects the edit when availability would go negative.
func (s *Service) UpdateTransaction(ctx context.Context, id int64, patch RecordPatch) (Record, error) {
	if patch.Quantity != nil && *patch.Quantity <= 0 {
		return Record{}, shared.Invalid("quantity", "must be a positive number")
	}
	if patch.StudentName != nil && strings.TrimSpace(*patch.StudentName) == "" {
		return Record{}, shared.Invalid("student_name", "must not be empty")
	}
	if patch.Type != nil && *patch.Type != TransactionBorrowed && *patch.Type != TransactionPurchased {
		return Record{}, shared.Invalid("transaction_type", "invalid transaction type")
	}
	var out Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		old, err := tx.GetRecordForUpdate(ctx, id)
		if err != nil {
			return err
		}
		stock, err := tx.GetStockForUpdate(ctx, old.ProductID)
		if err != nil {
			return err
		}
		next := applyPatch(old, patch)

		available := stock.AvailableCount + old.holding() - next.holding()
		if available > stock.MasterCount {
			available = stock.MasterCount
		}
		if available < 0 || stock.MasterCount < 0 {
			return ErrInsufficientForUpdate
		}
		delta := available - stock.AvailableCount
		if delta != 0 {
			stock.AvailableCount = available
			if err := tx.UpdateStock(ctx, stock); err != nil {
				return err
			}
		}
		if err := tx.UpdateRecord(ctx, next); err != nil {
			return err
		}
		ref := next.ID
		if _, err := s.appendMovement(ctx, tx, next.ProductID, ActionTransactionUpdated, 0, &ref, nil); err != nil {
			return err
		}
		if delta != 0 {
			if _, err := s.appendMovement(ctx, tx, next.ProductID, ActionManualAdjustment, delta, &ref, nil); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.changed(ctx, "transaction updated", slog.Int64("transaction_id", id))
	return out, nil
}

func applyPatch(rec Record, patch RecordPatch) Record {
	if patch.StudentName != nil {
		rec.StudentName = strings.TrimSpace(*patch.StudentName)
	}
	if patch.USN != nil {
		rec.USN = strings.TrimSpace(*patch.USN)
	}
	if patch.PhoneNumber != nil {
		rec.PhoneNumber = strings.TrimSpace(*patch.PhoneNumber)
	}
	if patch.Section != nil {
		rec.Section = strings.TrimSpace(*patch.Section)
	}
	if patch.Type != nil {
		rec.Type = *patch.Type
	}
	if patch.Quantity != nil {
		rec.Quantity = *patch.Quantity
	}
	if patch.IssueDate != nil {
		rec.IssueDate = patch.IssueDate
	}
	switch {
	case patch.ClearReturn:
		rec.ReturnDate = nil
	case patch.ReturnDate != nil:
		rec.ReturnDate = patch.ReturnDate
	}
	return rec
}

// ReturnTransaction stamps the return date on an outstanding borrow and
// credits availability, clamped to the master count. Returning a purchase or
// an already returned borrow changes nothing and reports Credited=false.
func (s *Service) ReturnTransaction(ctx context.Context, id int64) (ReturnResult, error) {
	var out ReturnResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out.RecordID = rec.ID
		if rec.Type != TransactionBorrowed || rec.Returned() {
			if rec.ReturnDate != nil {
				out.ReturnDate = *rec.ReturnDate
			}
			return nil
		}
		stock, err := tx.GetStockForUpdate(ctx, rec.ProductID)
		if err != nil {
			return err
		}
		credit := clamp(rec.Quantity, 0, stock.MasterCount-stock.AvailableCount)
		now := s.now().UTC()
		rec.ReturnDate = &now
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		if credit > 0 {
			stock.AvailableCount += credit
			if err := tx.UpdateStock(ctx, stock); err != nil {
				return err
			}
			ref := rec.ID
			if _, err := s.appendMovement(ctx, tx, rec.ProductID, ActionStudentReturn, credit, &ref, nil); err != nil {
				return err
			}
		}
		out.Credited = true
		out.ReturnDate = now
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}
	if out.Credited {
		s.changed(ctx, "transaction returned", slog.Int64("transaction_id", id))
	}
	return out, nil
}

// DeleteTransaction restores the units the record still holds, clamped to
// the master count, and deletes it.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, id)
		if err != nil {
			return err
		}
		stock, err := tx.GetStockForUpdate(ctx, rec.ProductID)
		if err != nil {
			return err
		}
		restored := clamp(stock.AvailableCount+rec.holding(), 0, stock.MasterCount)
		delta := restored - stock.AvailableCount
		if delta != 0 {
			stock.AvailableCount = restored
			if err := tx.UpdateStock(ctx, stock); err != nil {
				return err
			}
		}
		if err := tx.DeleteRecord(ctx, rec.ID); err != nil {
			return err
		}
		ref := rec.ID
		if _, err := s.appendMovement(ctx, tx, rec.ProductID, ActionTransactionDeleted, 0, &ref, nil); err != nil {
			return err
		}
		if delta != 0 {
			if _, err := s.appendMovement(ctx, tx, rec.ProductID, ActionManualAdjustment, delta, &ref, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(ctx, "transaction deleted", slog.Int64("transaction_id", id))
	return nil
}

// today is the current calendar day in the report timezone, stored as a
// date-only value.
func (s *Service) today() time.Time {
	now := s.now().In(s.cfg.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
